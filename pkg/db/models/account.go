package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a BUKKcoin wallet. The id is issued by the identity provider.
type Account struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Alias     *string   `gorm:"column:alias;type:text"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	Version   int64     `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
