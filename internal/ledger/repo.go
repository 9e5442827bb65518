package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bukkus/bukkus-backend/internal/repo"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

// Repository persists accounts, ledger entries and keyed ledger requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAccountIfAbsent(ctx context.Context, account *models.Account) (bool, error)
	FindAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindAccountByAlias(ctx context.Context, alias string) (*models.Account, error)
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error)
	UpdateBalance(ctx context.Context, account *models.Account, balance int64, at time.Time) error
	AppendEntries(ctx context.Context, entries ...models.LedgerEntry) error
	ListEntries(ctx context.Context, accountID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error)
	ListEntriesByKind(ctx context.Context, kind enums.LedgerEntryKind, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error)
	FindRequest(ctx context.Context, accountID uuid.UUID, key string) (*models.LedgerRequest, error)
	CreateRequest(ctx context.Context, req *models.LedgerRequest) error
	FindBalanceDrift(ctx context.Context, limit int) ([]BalanceDrift, error)
}

// BalanceDrift is an account whose stored balance disagrees with the signed
// sum of its entries.
type BalanceDrift struct {
	AccountID uuid.UUID `gorm:"column:account_id"`
	Balance   int64     `gorm:"column:balance"`
	EntrySum  int64     `gorm:"column:entry_sum"`
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

// CreateAccountIfAbsent inserts the account unless one with the same id exists.
// It reports whether a row was written.
func (r *repository) CreateAccountIfAbsent(ctx context.Context, account *models.Account) (bool, error) {
	if account == nil || account.ID == uuid.Nil {
		return false, fmt.Errorf("account id is required")
	}
	res := r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(account)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.DB(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccountByAlias(ctx context.Context, alias string) (*models.Account, error) {
	var account models.Account
	if err := r.DB(ctx).
		Where("lower(alias) = ?", strings.ToLower(strings.TrimSpace(alias))).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// LockAccounts row-locks each account in ascending id order so two operations
// touching the same pair can never deadlock. Missing ids are absent from the map.
func (r *repository) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ordered = slices.Compact(ordered)

	locked := make(map[uuid.UUID]*models.Account, len(ordered))
	for _, id := range ordered {
		var account models.Account
		err := r.ForUpdate(ctx).Where("id = ?", id).First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked[id] = &account
	}
	return locked, nil
}

// UpdateBalance writes the new balance only if the row still carries the
// version that was read. A lost race reports db.ErrConflict.
func (r *repository) UpdateBalance(ctx context.Context, account *models.Account, balance int64, at time.Time) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	if balance < 0 {
		return fmt.Errorf("balance of %s would become negative", account.ID)
	}
	at = at.UTC()
	res := r.DB(ctx).Model(&models.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]any{
			"balance":    balance,
			"version":    account.Version + 1,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.ErrConflict
	}
	account.Balance = balance
	account.Version++
	account.UpdatedAt = at
	return nil
}

func (r *repository) AppendEntries(ctx context.Context, entries ...models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&entries).Error
}

// ListEntries returns up to limit entries older than cursor, newest first.
func (r *repository) ListEntries(ctx context.Context, accountID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := r.DB(ctx).Where("account_id = ?", accountID)
	if err := repo.Newest(q, cursor, limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListEntriesByKind pages through entries of one kind across all accounts.
func (r *repository) ListEntriesByKind(ctx context.Context, kind enums.LedgerEntryKind, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := r.DB(ctx).Where("kind = ?", kind)
	if err := repo.Newest(q, cursor, limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindRequest(ctx context.Context, accountID uuid.UUID, key string) (*models.LedgerRequest, error) {
	var req models.LedgerRequest
	if err := r.DB(ctx).
		Where("account_id = ? AND idempotency_key = ?", accountID, key).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) CreateRequest(ctx context.Context, req *models.LedgerRequest) error {
	if req == nil {
		return fmt.Errorf("ledger request is required")
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return r.DB(ctx).Create(req).Error
}

const signedEntrySum = `COALESCE(SUM(CASE WHEN e.kind IN ('transfer_out', 'redemption') THEN -e.amount ELSE e.amount END), 0)`

// FindBalanceDrift returns up to limit accounts whose balance is not the sum
// of their entries. An empty result means the ledger is consistent.
func (r *repository) FindBalanceDrift(ctx context.Context, limit int) ([]BalanceDrift, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []BalanceDrift
	err := r.DB(ctx).Raw(`
		SELECT a.id AS account_id, a.balance AS balance, `+signedEntrySum+` AS entry_sum
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.id
		GROUP BY a.id, a.balance
		HAVING a.balance <> `+signedEntrySum+`
		ORDER BY a.id
		LIMIT ?`, limit).Scan(&rows).Error
	return rows, err
}
