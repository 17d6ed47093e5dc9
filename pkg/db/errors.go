package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"gorm.io/gorm"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// transient postgres SQLSTATEs: serialization, deadlock, lock timeout, cancel, shutdown.
var transientPGCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
	"57014": {},
	"57P01": {},
	"57P02": {},
	"57P03": {},
	"53300": {},
}

// IsTransient reports whether err is a retryable store failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return isTransientPGCode(pgxErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isTransientPGCode(string(pqErr.Code))
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isTransientPGCode(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	_, ok := transientPGCodes[code]
	return ok
}

// MapError converts a store failure into the typed taxonomy. Typed errors pass
// through untouched; record-not-found becomes NOT_FOUND; timeouts, lock
// contention and connection loss become TRANSIENT_STORE_ERROR.
func MapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	}
	if IsTransient(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, message)
	}
	if errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
