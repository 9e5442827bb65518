package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/internal/ledger"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	PurgePublished(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type notificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type driftFinder interface {
	FindBalanceDrift(ctx context.Context, limit int) ([]ledger.BalanceDrift, error)
}

// retentionJob deletes rows older than now minus retention.
type retentionJob struct {
	name      string
	retention time.Duration
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) (Result, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	rows, err := j.purge(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", j.name, err)
	}
	return Result{Rows: rows}, nil
}

// NewOutboxRetentionJob purges published outbox events. Pending and
// dead-lettered rows stay until an operator deals with them.
func NewOutboxRetentionJob(db txRunner, repo outboxPurger, retention time.Duration) (Job, error) {
	if db == nil || repo == nil {
		return nil, errors.New("outbox retention needs a transaction runner and repository")
	}
	if retention <= 0 {
		return nil, errors.New("outbox retention must be positive")
	}
	return &retentionJob{
		name:      "outbox-retention",
		retention: retention,
		now:       time.Now,
		purge: func(ctx context.Context, cutoff time.Time) (int64, error) {
			var deleted int64
			err := db.WithTx(ctx, func(tx *gorm.DB) error {
				n, err := repo.PurgePublished(tx, cutoff)
				deleted = n
				return err
			})
			return deleted, err
		},
	}, nil
}

// NewNotificationRetentionJob purges notifications read before the window.
// Unread notifications are never deleted.
func NewNotificationRetentionJob(repo notificationPurger, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, errors.New("notification retention needs a repository")
	}
	if retention <= 0 {
		return nil, errors.New("notification retention must be positive")
	}
	return &retentionJob{
		name:      "notification-retention",
		retention: retention,
		now:       time.Now,
		purge:     repo.DeleteReadBefore,
	}, nil
}

// ledgerAuditJob checks that every balance equals the signed sum of its
// entries. It never repairs anything; drift is reported for a human.
type ledgerAuditJob struct {
	finder driftFinder
	limit  int
	logg   *logger.Logger
}

var errLedgerDrift = errors.New("ledger balances drifted from entries")

func NewLedgerAuditJob(finder driftFinder, limit int, logg *logger.Logger) (Job, error) {
	if finder == nil {
		return nil, errors.New("ledger audit needs a repository")
	}
	if logg == nil {
		return nil, errors.New("ledger audit needs a logger")
	}
	return &ledgerAuditJob{finder: finder, limit: limit, logg: logg}, nil
}

func (j *ledgerAuditJob) Name() string { return "ledger-audit" }

func (j *ledgerAuditJob) Run(ctx context.Context) (Result, error) {
	drift, err := j.finder.FindBalanceDrift(ctx, j.limit)
	if err != nil {
		return Result{}, fmt.Errorf("ledger audit: %w", err)
	}
	for _, d := range drift {
		driftCtx := j.logg.WithFields(ctx, map[string]any{
			"account_id": d.AccountID.String(),
			"balance":    d.Balance,
			"entry_sum":  d.EntrySum,
		})
		j.logg.Warn(driftCtx, "ledger.audit.drift")
	}
	if len(drift) > 0 {
		return Result{Rows: int64(len(drift))}, fmt.Errorf("%w: %d accounts", errLedgerDrift, len(drift))
	}
	return Result{}, nil
}
