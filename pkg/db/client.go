package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultOperationTimeout = 5 * time.Second

// Client is the shared GORM connection plus the per-operation deadline.
type Client struct {
	conn    *gorm.DB
	timeout time.Duration
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured driver, sizes its pool and routes slow
// statements into logg.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	driver := "postgres"
	var dialector gorm.Dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	if cfg.IsSQLite() {
		driver, dialector = "sqlite", sqlite.Open(cfg.DSN)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 statementLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	sizePool(sqlDB, cfg)

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         driver,
			"max_open_conns": cfg.MaxOpenConns,
		}), "database connection established")
	}

	return NewFromConn(conn, cfg.OperationTimeout), nil
}

// NewFromConn wraps an already opened connection. A non-positive timeout falls back to the default.
func NewFromConn(conn *gorm.DB, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &Client{conn: conn, timeout: timeout}
}

func sizePool(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// sqlWriter adapts gorm's printf-style logger onto the structured logger.
type sqlWriter struct {
	logg *logger.Logger
}

func (w sqlWriter) Printf(format string, args ...any) {
	w.logg.Warn(context.Background(), fmt.Sprintf(format, args...))
}

// statementLogger reports only slow statements and driver errors; missing
// rows are an expected outcome of lookups.
func statementLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil || slow <= 0 {
		return gormlogger.Discard
	}
	return gormlogger.New(sqlWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the datasource is reachable within the operation timeout.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction bounded by the operation timeout. fn's
// error, a panic or a blown deadline rolls back; driver failures are
// classified with MapError.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tx := c.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return MapError(tx.Error, "begin transaction")
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		if ctx.Err() != nil {
			return MapError(ctx.Err(), "transaction aborted")
		}
		return MapError(err, "transaction failed")
	}
	if err := tx.Commit().Error; err != nil {
		return MapError(err, "commit transaction")
	}
	committed = true
	return nil
}
