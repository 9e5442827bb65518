package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bukkus/bukkus-backend/internal/analytics/types"
	pkgbigquery "github.com/bukkus/bukkus-backend/pkg/bigquery"
)

// Config controls batching and retry for marketplace event rows.
type Config struct {
	MarketplaceTable string
	// BatchSize rows are buffered before a streaming insert. One means every
	// event is written before its message is acked.
	BatchSize int
	// FlushInterval drains a partial batch when Run is active.
	FlushInterval time.Duration
	Retry         RetryPolicy
}

// RetryPolicy bounds the exponential backoff around a streaming insert.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams marketplace_events rows. Rows save themselves with
// their event id as the insert id.
type BigQueryWriter struct {
	client        tableInserter
	table         string
	batchSize     int
	flushInterval time.Duration
	retry         RetryPolicy

	mu      sync.Mutex
	pending []types.MarketplaceEventRow
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.MarketplaceTable)
	if table == "" {
		return nil, errors.New("marketplace table is required")
	}
	return &BigQueryWriter{
		client:        client,
		table:         table,
		batchSize:     max(cfg.BatchSize, 1),
		flushInterval: cfg.FlushInterval,
		retry:         cfg.Retry.withDefaults(),
	}, nil
}

// InsertMarketplace buffers row and writes the batch once it is full.
func (w *BigQueryWriter) InsertMarketplace(ctx context.Context, row types.MarketplaceEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.drain(ctx)
}

// Flush writes whatever is buffered.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drain(ctx)
}

// Run flushes partial batches every FlushInterval until ctx ends. With no
// interval, or a batch size of one, it just waits for ctx.
func (w *BigQueryWriter) Run(ctx context.Context) error {
	if w.flushInterval <= 0 || w.batchSize == 1 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

// drain must be called with mu held. Rows of a failed batch are discarded;
// their messages were nacked or will be redelivered by Pub/Sub.
func (w *BigQueryWriter) drain(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, 0, len(w.pending))
	for i := range w.pending {
		rows = append(rows, &w.pending[i])
	}
	err := w.insert(ctx, rows)
	w.pending = nil
	return err
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	backoff := retry.WithMaxRetries(uint64(w.retry.MaxAttempts-1),
		retry.WithCappedDuration(w.retry.MaximumBackoff,
			retry.NewExponential(w.retry.InitialBackoff)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.table, err)
	}
	return nil
}

var retryableHTTP = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableGRPC = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}

// retryable reports whether err is transient. Composite insert errors are
// only retried when every inner error is.
func retryable(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) && multi != nil {
		return allRetryable(*multi)
	}
	var putErr *cbigquery.PutMultiError
	if errors.As(err, &putErr) && putErr != nil {
		inner := make([]error, 0, len(*putErr))
		for _, rowErr := range *putErr {
			inner = append(inner, rowErr.Errors)
		}
		return allRetryable(inner)
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) && rowErr != nil {
		return allRetryable(rowErr.Errors)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok {
		return retryableGRPC[st.Code()]
	}
	return false
}

func allRetryable(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !retryable(err) {
			return false
		}
	}
	return true
}

// EncodeJSON turns an event payload into a BigQuery JSON column value. Raw
// JSON passes through untouched.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
