package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// TableSpec describes a table the service streams into. Schema and the
// partitioning fields are only used when the table has to be created.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
	Clustering     []string
}

// Client is the dataset-scoped BigQuery handle shared by the analytics worker
// and the admin dashboard queries.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
	logg    *logger.Logger
}

// NewClient connects and confirms the dataset is reachable. With AutoCreate a
// missing dataset is created in cfg.Location.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	cfg.Dataset = strings.TrimSpace(cfg.Dataset)
	if cfg.Dataset == "" {
		return nil, errDatasetRequired
	}
	cfg.MarketplaceEventsTable = strings.TrimSpace(cfg.MarketplaceEventsTable)
	if cfg.MarketplaceEventsTable == "" {
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{
		client:  bq,
		dataset: bq.Dataset(cfg.Dataset),
		cfg:     cfg,
		logg:    logg,
	}
	if err := c.ensureDataset(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "dataset": cfg.Dataset}), "bigquery.connected")
	}
	return c, nil
}

func (c *Client) ensureDataset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	_, err := c.dataset.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !isNotFound(err):
		return fmt.Errorf("checking dataset %q: %w", c.cfg.Dataset, err)
	case !c.cfg.AutoCreate:
		return fmt.Errorf("dataset %q does not exist", c.cfg.Dataset)
	}
	if err := c.dataset.Create(ctx, &bigquery.DatasetMetadata{Location: c.cfg.Location}); err != nil && !isConflict(err) {
		return fmt.Errorf("creating dataset %q: %w", c.cfg.Dataset, err)
	}
	return nil
}

// EnsureTable confirms spec.Name exists. When it does not and AutoCreate is
// on, the table is created day-partitioned on spec.PartitionField.
func (c *Client) EnsureTable(ctx context.Context, spec TableSpec) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return errTableNameRequired
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	table := c.dataset.Table(name)
	_, err := table.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !isNotFound(err):
		return fmt.Errorf("checking table %q: %w", name, err)
	case !c.cfg.AutoCreate:
		return fmt.Errorf("table %q does not exist", name)
	}

	meta := &bigquery.TableMetadata{Schema: spec.Schema}
	if spec.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: spec.PartitionField}
	}
	if len(spec.Clustering) > 0 {
		meta.Clustering = &bigquery.Clustering{Fields: spec.Clustering}
	}
	if err := table.Create(ctx, meta); err != nil && !isConflict(err) {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "table", name), "bigquery.table.created")
	}
	return nil
}

// Ping checks the dataset and the marketplace events table.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		return fmt.Errorf("dataset %q: %w", c.cfg.Dataset, err)
	}
	if _, err := c.dataset.Table(c.cfg.MarketplaceEventsTable).Metadata(ctx); err != nil {
		return fmt.Errorf("table %q: %w", c.cfg.MarketplaceEventsTable, err)
	}
	return nil
}

// InsertRows streams rows into table. Rows should be ValueSavers or struct
// pointers.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// Query runs parameterized SQL and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	q.Labels = map[string]string{"service": "bukkus", "surface": "admin-analytics"}
	return q.Read(ctx)
}

// MarketplaceEventsTable is the configured marketplace_events table name.
func (c *Client) MarketplaceEventsTable() string {
	if c == nil {
		return ""
	}
	return c.cfg.MarketplaceEventsTable
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiStatus(err) == http.StatusConflict
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
