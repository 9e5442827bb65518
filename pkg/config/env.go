package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "BUKKUS_APP_ENV"
	EnvPort      = "BUKKUS_APP_PORT"
	EnvLogLevel  = "BUKKUS_LOG_LEVEL"
	EnvLogFormat = "BUKKUS_LOG_FORMAT"

	EnvDBDSN  = "BUKKUS_DB_DSN"
	EnvDBHost = "BUKKUS_DB_HOST"
	EnvDBUser = "BUKKUS_DB_USER"
	EnvDBName = "BUKKUS_DB_NAME"

	EnvUseSQLite = "BUKKUS_USE_SQLITE"

	EnvRedisURL = "BUKKUS_REDIS_URL"

	EnvJWTSecret = "BUKKUS_JWT_SECRET"
	EnvJWTIssuer = "BUKKUS_JWT_ISSUER"

	EnvGCPProjectID = "BUKKUS_GCP_PROJECT_ID"

	EnvPubSubDomainTopic = "BUKKUS_PUBSUB_DOMAIN_TOPIC"

	EnvOutboxBatchSize   = "BUKKUS_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxMaxAttempts = "BUKKUS_OUTBOX_MAX_ATTEMPTS"

	EnvLedgerConflictRetries = "BUKKUS_LEDGER_CONFLICT_RETRIES"
	EnvLedgerHistoryPageSize = "BUKKUS_LEDGER_HISTORY_PAGE_SIZE"

	EnvOffersMaxActive = "BUKKUS_OFFERS_MAX_ACTIVE_PER_LISTING"

	EnvRateLimitRequests = "BUKKUS_RATE_LIMIT_REQUESTS"
)

// legacyDBEnvVars must all be set when no DSN is provided.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
