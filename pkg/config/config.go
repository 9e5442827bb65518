package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Ledger       LedgerConfig
	Offers       OffersConfig
	RateLimit    RateLimitConfig
	Housekeeping HousekeepingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every out-of-range numeric setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Ledger.ConflictRetries < 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be >= 0", EnvLedgerConflictRetries))
	}
	if c.Ledger.HistoryPageSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be > 0", EnvLedgerHistoryPageSize))
	}
	if c.Offers.MaxActivePerListing <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be > 0", EnvOffersMaxActive))
	}
	if c.Outbox.BatchSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be > 0", EnvOutboxBatchSize))
	}
	if c.Outbox.MaxAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be > 0", EnvOutboxMaxAttempts))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerWindow <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be > 0", EnvRateLimitRequests))
	}
	if err != nil {
		return errors.Join(errors.New("invalid config"), err)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"BUKKUS_APP_ENV" required:"true"`
	Port         string `envconfig:"BUKKUS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BUKKUS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BUKKUS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BUKKUS_LOG_WARN_STACK" default:"false"`
	// DefaultLocale is used for user-facing messages when the request carries no Accept-Language.
	DefaultLocale string   `envconfig:"BUKKUS_DEFAULT_LOCALE" default:"es"`
	CORSOrigins   []string `envconfig:"BUKKUS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"BUKKUS_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers serve /metrics. Empty disables it.
	MetricsAddr string `envconfig:"BUKKUS_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"BUKKUS_DB_DSN"`
	Driver string `envconfig:"BUKKUS_DB_DRIVER" default:"postgres"`
	// SQLitePath is only read when the sqlite feature flag is on.
	SQLitePath string `envconfig:"BUKKUS_SQLITE_PATH" default:"file:bukkus.db?_foreign_keys=on"`

	LegacyHost     string `envconfig:"BUKKUS_DB_HOST"`
	LegacyPort     int    `envconfig:"BUKKUS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BUKKUS_DB_USER"`
	LegacyPassword string `envconfig:"BUKKUS_DB_PASSWORD"`
	LegacyName     string `envconfig:"BUKKUS_DB_NAME"`
	LegacySSLMode  string `envconfig:"BUKKUS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BUKKUS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BUKKUS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BUKKUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BUKKUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this at warn. Zero disables it.
	SlowQuery      time.Duration `envconfig:"BUKKUS_DB_SLOW_QUERY" default:"250ms"`
	ConnectTimeout time.Duration `envconfig:"BUKKUS_DB_CONNECT_TIMEOUT" default:"15s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BUKKUS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BUKKUS_REDIS_ADDR"`
	Password     string        `envconfig:"BUKKUS_REDIS_PASSWORD"`
	DB           int           `envconfig:"BUKKUS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BUKKUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BUKKUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BUKKUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BUKKUS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BUKKUS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"BUKKUS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BUKKUS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BUKKUS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BUKKUS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BUKKUS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"BUKKUS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	// RequestIdempotencyTTL bounds how long replayed HTTP responses are kept in Redis.
	RequestIdempotencyTTL time.Duration `envconfig:"BUKKUS_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BUKKUS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"BUKKUS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BUKKUS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"BUKKUS_PUBSUB_DOMAIN_TOPIC" default:"bukkus-domain-events"`
	NotificationSubscription string `envconfig:"BUKKUS_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"bukkus-notifications"`
	AnalyticsSubscription    string `envconfig:"BUKKUS_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"bukkus-analytics"`
	// AutoCreate provisions the topic and subscriptions when missing. Meant for
	// the emulator and dev projects.
	AutoCreate  bool          `envconfig:"BUKKUS_PUBSUB_AUTO_CREATE" default:"false"`
	AckDeadline time.Duration `envconfig:"BUKKUS_PUBSUB_ACK_DEADLINE" default:"30s"`
}

type BigQueryConfig struct {
	Dataset                string        `envconfig:"BUKKUS_BIGQUERY_DATASET" default:"bukkus"`
	MarketplaceEventsTable string        `envconfig:"BUKKUS_BIGQUERY_MARKETPLACE_TABLE" default:"marketplace_events"`
	WriterBatchSize        int           `envconfig:"BUKKUS_ANALYTICS_BATCH_SIZE" default:"1"`
	WriterFlushInterval    time.Duration `envconfig:"BUKKUS_ANALYTICS_FLUSH_INTERVAL" default:"5s"`
	AutoCreate             bool          `envconfig:"BUKKUS_BIGQUERY_AUTO_CREATE" default:"false"`
	Location               string        `envconfig:"BUKKUS_BIGQUERY_LOCATION" default:"US"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BUKKUS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BUKKUS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BUKKUS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type LedgerConfig struct {
	ConflictRetries int           `envconfig:"BUKKUS_LEDGER_CONFLICT_RETRIES" default:"5"`
	ConflictBackoff time.Duration `envconfig:"BUKKUS_LEDGER_CONFLICT_BACKOFF" default:"20ms"`
	HistoryPageSize int           `envconfig:"BUKKUS_LEDGER_HISTORY_PAGE_SIZE" default:"50"`
}

type OffersConfig struct {
	MaxActivePerListing int `envconfig:"BUKKUS_OFFERS_MAX_ACTIVE_PER_LISTING" default:"3"`
}

// HousekeepingConfig drives the cron-worker maintenance cycle.
type HousekeepingConfig struct {
	Interval              time.Duration `envconfig:"BUKKUS_HOUSEKEEPING_INTERVAL" default:"1h"`
	OutboxRetention       time.Duration `envconfig:"BUKKUS_OUTBOX_RETENTION" default:"720h"`
	NotificationRetention time.Duration `envconfig:"BUKKUS_NOTIFICATION_RETENTION" default:"2160h"`
	LedgerAuditLimit      int           `envconfig:"BUKKUS_LEDGER_AUDIT_LIMIT" default:"100"`
}

// RateLimitConfig throttles mutating API calls per account with a fixed window.
type RateLimitConfig struct {
	Enabled           bool          `envconfig:"BUKKUS_RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerWindow int64         `envconfig:"BUKKUS_RATE_LIMIT_REQUESTS" default:"60"`
	Window            time.Duration `envconfig:"BUKKUS_RATE_LIMIT_WINDOW" default:"1m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
