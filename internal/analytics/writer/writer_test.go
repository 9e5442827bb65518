package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	pkgbigquery "github.com/bukkus/bukkus-backend/pkg/bigquery"
)

func TestNewRequiresClientAndTable(t *testing.T) {
	if _, err := New(nil, Config{MarketplaceTable: "marketplace_events"}); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := New(&pkgbigquery.Client{}, Config{MarketplaceTable: "  "}); err == nil {
		t.Fatal("expected error without table")
	}
	w, err := New(&pkgbigquery.Client{}, Config{MarketplaceTable: " marketplace_events "})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if w.table != "marketplace_events" || w.batchSize != 1 || w.retry.MaxAttempts != 3 {
		t.Fatalf("unexpected defaults: table=%q batch=%d attempts=%d", w.table, w.batchSize, w.retry.MaxAttempts)
	}
}

func TestInsertUsesEventIDAsInsertID(t *testing.T) {
	w, fake := newTestWriter(t, 1)

	if err := w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "evt-1", EventType: "offer_created"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one insert, got %d", len(fake.calls))
	}
	saver, ok := fake.calls[0].rows[0].(cbigquery.ValueSaver)
	if !ok {
		t.Fatalf("expected ValueSaver, got %T", fake.calls[0].rows[0])
	}
	if _, insertID, err := saver.Save(); err != nil || insertID != "evt-1" {
		t.Fatalf("expected insert id evt-1, got %q (err=%v)", insertID, err)
	}
	if fake.calls[0].table != "marketplace_events" {
		t.Fatalf("unexpected table %q", fake.calls[0].table)
	}
}

func TestInsertBuffersUntilBatchIsFull(t *testing.T) {
	w, fake := newTestWriter(t, 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := w.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: id}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected rows to stay buffered, got %d inserts", len(fake.calls))
	}
	if err := w.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: "c"}); err != nil {
		t.Fatalf("insert c: %v", err)
	}
	if len(fake.calls) != 1 || len(fake.calls[0].rows) != 3 {
		t.Fatalf("expected a single three-row insert, got %+v", fake.calls)
	}
	if len(w.pending) != 0 {
		t.Fatalf("expected empty buffer, got %d", len(w.pending))
	}
}

func TestFlushDrainsPartialBatch(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	ctx := context.Background()

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatal("empty flush must not call BigQuery")
	}

	_ = w.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: "a"})
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(fake.calls) != 1 || len(fake.calls[0].rows) != 1 {
		t.Fatalf("expected one single-row insert, got %+v", fake.calls)
	}
}

func TestRunFlushesOnInterval(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	w.flushInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := w.InsertMarketplace(ctx, types.MarketplaceEventRow{EventID: "a"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	deadline := time.After(time.Second)
	for fake.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for interval flush")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestInsertRetriesTransientErrors(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	if err := w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "a"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected a retry, got %d attempts", len(fake.calls))
	}
}

func TestInsertStopsOnPermanentError(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	if err := w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "a"}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one attempt, got %d", len(fake.calls))
	}
	if len(w.pending) != 0 {
		t.Fatal("failed batch should be discarded")
	}
}

func TestInsertGivesUpAfterMaxAttempts(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	unavailable := status.Error(codes.Unavailable, "try later")
	fake.responses = []error{unavailable, unavailable, unavailable, unavailable}

	err := w.InsertMarketplace(context.Background(), types.MarketplaceEventRow{EventID: "a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected three attempts, got %d", len(fake.calls))
	}
}

func TestRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":               {nil, false},
		"plain":             {errors.New("boom"), false},
		"http 429":          {&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		"http 400":          {&googleapi.Error{Code: http.StatusBadRequest}, false},
		"grpc unavailable":  {status.Error(codes.Unavailable, "x"), true},
		"grpc invalid":      {status.Error(codes.InvalidArgument, "x"), false},
		"row all transient": {cbigquery.PutMultiError{{Errors: cbigquery.MultiError{status.Error(codes.Aborted, "x")}}}, true},
		"row mixed": {cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{status.Error(codes.Aborted, "x")}},
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
		}, false},
		"empty multi": {cbigquery.MultiError{}, false},
	}
	for name, tc := range cases {
		if got := retryable(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", name, tc.want, got)
		}
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"amount": 10})
	if err != nil || !nj.Valid || nj.JSONVal != `{"amount":10}` {
		t.Fatalf("unexpected encode result %+v err=%v", nj, err)
	}

	nj, err = EncodeJSON(nil)
	if err != nil || nj.Valid {
		t.Fatalf("nil payload should be NULL, got %+v err=%v", nj, err)
	}

	nj, err = EncodeJSON(json.RawMessage(`{"offer_id":"o-1"}`))
	if err != nil || nj.JSONVal != `{"offer_id":"o-1"}` {
		t.Fatalf("raw json should pass through, got %+v err=%v", nj, err)
	}

	nj, err = EncodeJSON([]byte{})
	if err != nil || nj.Valid {
		t.Fatalf("empty bytes should be NULL, got %+v err=%v", nj, err)
	}
}

type insertCall struct {
	table string
	rows  []any
}

type fakeInserter struct {
	mu        sync.Mutex
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.calls)
	f.calls = append(f.calls, insertCall{table: table, rows: rows})
	if idx < len(f.responses) {
		return f.responses[idx]
	}
	return nil
}

func (f *fakeInserter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestWriter(t *testing.T, batch int) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	w, err := New(&pkgbigquery.Client{}, Config{
		MarketplaceTable: "marketplace_events",
		BatchSize:        batch,
		Retry:            RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	fake := &fakeInserter{}
	w.client = fake
	return w, fake
}
