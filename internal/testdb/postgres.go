package testdb

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/retroquest/storefront-backend/pkg/migrate"
)

// PostgresDSNEnv names the server OpenPostgres connects to.
const PostgresDSNEnv = "RETROQUEST_TEST_POSTGRES_DSN"

// OpenPostgres returns a pooled connection to a fresh schema on the server
// named by RETROQUEST_TEST_POSTGRES_DSN, migrated with the embedded goose
// schema. The test is skipped when the variable is unset. Unlike Open, the
// pool is not pinned, so row locks are contended for real.
func OpenPostgres(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(PostgresDSNEnv))
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	ctx := context.Background()

	admin, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = admin.Close() })

	schema := "rq_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { _, _ = admin.ExecContext(ctx, "DROP SCHEMA "+schema+" CASCADE") })

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.RuntimeParams["search_path"] = schema
	sqlDB := stdlib.OpenDB(*cfg)
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migrate.New(sqlDB, nil)
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatalf("migrate postgres: %v", err)
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return conn
}
