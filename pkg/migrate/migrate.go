package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/retroquest/storefront-backend/pkg/logger"
)

// Migrator applies the storefront schema to postgres.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

// New builds a Migrator over the embedded schema. Tests pass their own fsys.
func New(db *sql.DB, logg *logger.Logger, fsys ...fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	source := Schema()
	if len(fsys) > 0 && fsys[0] != nil {
		source = fsys[0]
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the newest applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if result != nil {
		m.report(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// To moves the schema up or down until target (YYYYMMDDHHMMSS) is the newest applied version.
func (m *Migrator) To(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("current version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current < version:
		results, err = m.provider.UpTo(ctx, version)
	case current > version:
		results, err = m.provider.DownTo(ctx, version)
	}
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("migrate to %d: %w", version, err)
	}
	return nil
}

// Pending lists the versions not yet applied, oldest first.
func (m *Migrator) Pending(ctx context.Context) ([]int64, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	var pending []int64
	for _, st := range statuses {
		if st.State == goose.StatePending {
			pending = append(pending, st.Source.Version)
		}
	}
	return pending, nil
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	if m.logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		m.logg.Info(m.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
}
