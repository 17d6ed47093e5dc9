package config

const (
	EnvPrefix = "RETROQUEST"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "RETROQUEST_APP_ENV"
	EnvPort     = "RETROQUEST_APP_PORT"
	EnvLogLevel = "RETROQUEST_LOG_LEVEL"

	EnvDBDSN  = "RETROQUEST_DB_DSN"
	EnvDBHost = "RETROQUEST_DB_HOST"
	EnvDBUser = "RETROQUEST_DB_USER"
	EnvDBName = "RETROQUEST_DB_NAME"

	EnvDBOperationTimeout = "RETROQUEST_DB_OPERATION_TIMEOUT"
	EnvRedisURL           = "RETROQUEST_REDIS_URL"
	EnvJWTSecret          = "RETROQUEST_JWT_SECRET"
	EnvJWTIssuer          = "RETROQUEST_JWT_ISSUER"
	EnvUseSQLite          = "RETROQUEST_USE_SQLITE"

	EnvShippingFeeCents = "RETROQUEST_SHIPPING_FEE_CENTS"
	EnvReservationTTL   = "RETROQUEST_RESERVATION_TTL"
	EnvPubSubOrders     = "RETROQUEST_PUBSUB_ORDERS_TOPIC"
	EnvGCPProjectID     = "RETROQUEST_GCP_PROJECT_ID"

	defaultSQLiteDSN = "file:retroquest.db?_foreign_keys=on&_busy_timeout=5000"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
