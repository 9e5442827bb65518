// Package dbtest opens throwaway SQLite databases that mirror the Postgres schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bukkus/bukkus-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE accounts (
		id TEXT PRIMARY KEY,
		alias TEXT,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_accounts_alias ON accounts (lower(alias)) WHERE alias IS NOT NULL`,
	`CREATE TABLE ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		balance_after INTEGER NOT NULL,
		counterparty_account_id TEXT,
		related_listing_id TEXT,
		operation_id TEXT NOT NULL,
		actor_account_id TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE ledger_requests (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		operation TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		operation_id TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at DATETIME,
		CONSTRAINT ux_ledger_requests_account_key UNIQUE (account_id, idempotency_key)
	)`,
	`CREATE TABLE listings (
		id TEXT PRIMARY KEY,
		owner_account_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		token_price INTEGER NOT NULL DEFAULT 0 CHECK (token_price >= 0),
		is_withdrawn BOOLEAN NOT NULL DEFAULT 0,
		withdrawn_at DATETIME,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE offers (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		from_account_id TEXT NOT NULL,
		to_account_id TEXT NOT NULL,
		proposed_item TEXT NOT NULL,
		proposed_listing_id TEXT,
		comment TEXT,
		image_url TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		chat_channel_id TEXT,
		resolved_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME,
		CHECK (from_account_id <> to_account_id)
	)`,
	`CREATE TABLE chat_channels (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		event_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT,
		read_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_notifications_event_account ON notifications (event_id, account_id) WHERE event_id IS NOT NULL`,
}

// Open returns a private in-memory database with the full schema applied.
// The pool is capped at one connection, so concurrent transactions serialize.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// OpenClient wraps Open in a db.Client.
func OpenClient(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromGorm(conn), conn
}
