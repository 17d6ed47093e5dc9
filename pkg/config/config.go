package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RETROQUEST_APP_ENV" required:"true"`
	Port         string `envconfig:"RETROQUEST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RETROQUEST_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"RETROQUEST_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"RETROQUEST_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RETROQUEST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RETROQUEST_DB_DSN"`
	Driver string `envconfig:"RETROQUEST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RETROQUEST_DB_HOST"`
	LegacyPort     int    `envconfig:"RETROQUEST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RETROQUEST_DB_USER"`
	LegacyPassword string `envconfig:"RETROQUEST_DB_PASSWORD"`
	LegacyName     string `envconfig:"RETROQUEST_DB_NAME"`
	LegacySSLMode  string `envconfig:"RETROQUEST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RETROQUEST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RETROQUEST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RETROQUEST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RETROQUEST_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// OperationTimeout bounds every transaction and query issued through the client.
	OperationTimeout time.Duration `envconfig:"RETROQUEST_DB_OPERATION_TIMEOUT" default:"5s"`
	// SlowQuery is the duration above which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"RETROQUEST_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RETROQUEST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RETROQUEST_REDIS_ADDR"`
	Password     string        `envconfig:"RETROQUEST_REDIS_PASSWORD"`
	DB           int           `envconfig:"RETROQUEST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RETROQUEST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RETROQUEST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RETROQUEST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RETROQUEST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RETROQUEST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RETROQUEST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RETROQUEST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RETROQUEST_JWT_EXPIRATION_MINUTES" default:"60"`
}

// IsSQLite reports whether the configured store is a local sqlite file.
func (db DBConfig) IsSQLite() bool {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	return driver == "sqlite" || strings.HasPrefix(db.DSN, "file:")
}

// RateLimitConfig caps storefront API requests per user.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"RETROQUEST_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"RETROQUEST_RATE_LIMIT_LIMIT" default:"120"`
	// CheckoutLimit is a tighter budget on POST /api/orders within the same window.
	CheckoutLimit int `envconfig:"RETROQUEST_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RETROQUEST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RETROQUEST_AUTO_MIGRATE" default:"false"`
}

type CheckoutConfig struct {
	// ShippingFeeCents is the flat shipping fee added to every order.
	ShippingFeeCents int `envconfig:"RETROQUEST_SHIPPING_FEE_CENTS" default:"1000"`
	// ReservationTTL expires stale unpaid orders when positive. Zero disables expiry.
	ReservationTTL time.Duration `envconfig:"RETROQUEST_RESERVATION_TTL" default:"0s"`
	// TrackingPrefix is prepended to generated tracking codes.
	TrackingPrefix string `envconfig:"RETROQUEST_TRACKING_PREFIX" default:"RQ"`
}

func (c CheckoutConfig) validate() error {
	if c.ShippingFeeCents < 0 {
		return fmt.Errorf("%s must be >= 0", EnvShippingFeeCents)
	}
	if c.ReservationTTL < 0 {
		return fmt.Errorf("%s must be >= 0", EnvReservationTTL)
	}
	return nil
}

// ReservationExpiryEnabled reports whether unpaid reservations are expired by the cron worker.
func (c CheckoutConfig) ReservationExpiryEnabled() bool {
	return c.ReservationTTL > 0
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"RETROQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"RETROQUEST_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"RETROQUEST_PUBSUB_ORDERS_TOPIC" default:"rq-order-events"`
	// NotificationsSubscription feeds the notification worker from the orders topic.
	NotificationsSubscription string `envconfig:"RETROQUEST_PUBSUB_NOTIFICATIONS_SUBSCRIPTION" default:"rq-order-events-notifications"`
	// MaxOutstandingMessages bounds unacked deliveries per subscriber.
	MaxOutstandingMessages int `envconfig:"RETROQUEST_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RETROQUEST_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RETROQUEST_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RETROQUEST_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// RetentionDays is how long published rows are kept before the cron worker purges them.
	RetentionDays int `envconfig:"RETROQUEST_OUTBOX_RETENTION_DAYS" default:"30"`
	// DeadLetterRetentionDays is how long parked rows stay in outbox_dlq.
	DeadLetterRetentionDays int `envconfig:"RETROQUEST_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"RETROQUEST_CRON_INTERVAL" default:"5m"`
	// ExpiryBatchSize caps how many stale orders one cycle expires.
	ExpiryBatchSize int `envconfig:"RETROQUEST_CRON_EXPIRY_BATCH_SIZE" default:"100"`
	// RetentionEvery spaces out outbox cleanup; expiry runs every cycle.
	RetentionEvery time.Duration `envconfig:"RETROQUEST_CRON_RETENTION_EVERY" default:"24h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
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
