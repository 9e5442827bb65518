// Package repo holds what the domain repositories share: a connection that can
// be rebound to a transaction, and keyset paging over (created_at, id).
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// Base is embedded by every domain repository.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// WithTx rebinds to tx; a nil tx keeps the current connection.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// ForUpdate row-locks what the query reads until the transaction ends. SQLite
// ignores the clause; its single connection already serializes writers.
func (b Base) ForUpdate(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// Before keeps rows strictly after cursor in (created_at, id) descending order.
func Before(q *gorm.DB, cursor *pagination.Cursor) *gorm.DB {
	if cursor == nil {
		return q
	}
	return q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
}

// Newest orders q newest first and reads at most limit rows after cursor.
// Callers pass Window.Fetch() as limit and trim with pagination.Cut.
func Newest(q *gorm.DB, cursor *pagination.Cursor, limit int) *gorm.DB {
	return Before(q, cursor).Order("created_at DESC").Order("id DESC").Limit(limit)
}
