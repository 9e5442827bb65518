package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/internal/listings"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db/dbtest"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
)

var adminID = uuid.MustParse("00000000-0000-0000-0000-00000000a11d")

type harness struct {
	svc      *service
	conn     *gorm.DB
	listings listings.Repository
	registry *prometheus.Registry
}

type harnessOption func(*ServiceParams)

func withRepo(wrap func(Repository) Repository) harnessOption {
	return func(p *ServiceParams) { p.Repo = wrap(p.Repo) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	listingRepo := listings.NewRepository(conn)
	registry := prometheus.NewRegistry()
	params := ServiceParams{
		Repo:     NewRepository(conn),
		Listings: listingRepo,
		Tx:       client,
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Config: config.LedgerConfig{
			ConflictRetries: 3,
			ConflictBackoff: time.Millisecond,
			HistoryPageSize: 50,
		},
		Metrics: metrics.NewLedgerMetrics(registry),
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &harness{svc: svc.(*service), conn: conn, listings: listingRepo, registry: registry}
}

// fund opens an account and deposits amount into it.
func (h *harness) fund(t *testing.T, amount int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	_, err := h.svc.OpenAccount(ctx, id, nil)
	require.NoError(t, err)
	if amount > 0 {
		_, err = h.svc.Deposit(ctx, DepositInput{AccountID: id, Amount: amount, AdminActorID: adminID})
		require.NoError(t, err)
	}
	return id
}

func (h *harness) listing(t *testing.T, owner uuid.UUID, price int64) *models.Listing {
	t.Helper()
	listing := &models.Listing{OwnerAccountID: owner, Title: "El Aleph", TokenPrice: price}
	require.NoError(t, h.listings.Create(context.Background(), listing))
	return listing
}

func (h *harness) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	balance, err := h.svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return balance
}

func (h *harness) entries(t *testing.T, id uuid.UUID) []models.LedgerEntry {
	t.Helper()
	var rows []models.LedgerEntry
	require.NoError(t, h.conn.Where("account_id = ?", id).Order("created_at ASC").Find(&rows).Error)
	return rows
}

// tokensMoved reads the ledger_tokens_moved_total counter for operation.
func (h *harness) tokensMoved(t *testing.T, operation string) float64 {
	t.Helper()
	mfs, err := h.registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "ledger_tokens_moved_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "operation" && label.GetValue() == operation {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func (h *harness) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Count(&n).Error)
	return n
}

// steppingClock returns strictly increasing timestamps.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

// faultyRepo delegates to a real repository. Once armed it fails the
// failOnCall-th balance write (and every later one when forever is set).
type faultyRepo struct {
	Repository
	state *faultState
}

type faultState struct {
	mu         sync.Mutex
	armed      bool
	calls      int
	failOnCall int
	failWith   error
	forever    bool
}

func (f *faultyRepo) WithTx(tx *gorm.DB) Repository {
	return &faultyRepo{Repository: f.Repository.WithTx(tx), state: f.state}
}

func (f *faultyRepo) UpdateBalance(ctx context.Context, account *models.Account, balance int64, at time.Time) error {
	st := f.state
	st.mu.Lock()
	fail := false
	if st.armed {
		st.calls++
		fail = st.calls == st.failOnCall || (st.forever && st.calls >= st.failOnCall)
	}
	st.mu.Unlock()
	if fail {
		return st.failWith
	}
	return f.Repository.UpdateBalance(ctx, account, balance, at)
}

func (st *faultState) arm() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.armed = true
	st.calls = 0
}

func withFaults(st *faultState) harnessOption {
	return withRepo(func(inner Repository) Repository {
		return &faultyRepo{Repository: inner, state: st}
	})
}
