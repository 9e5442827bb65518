package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/pkg/enums"
)

// Notification is an in-app inbox item for one account.
// EventID ties it back to the outbox event that produced it.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID              `gorm:"column:account_id;type:uuid;not null" json:"account_id"`
	EventID   *uuid.UUID             `gorm:"column:event_id;type:uuid" json:"event_id,omitempty"`
	Type      enums.NotificationType `gorm:"column:type;type:text;not null" json:"type"`
	Title     string                 `gorm:"column:title;type:text;not null" json:"title"`
	Message   string                 `gorm:"column:message;type:text;not null" json:"message"`
	Link      *string                `gorm:"column:link;type:text" json:"link,omitempty"`
	ReadAt    *time.Time             `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time              `gorm:"column:created_at;not null" json:"created_at"`
}
