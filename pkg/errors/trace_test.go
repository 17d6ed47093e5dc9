package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestLogFieldsForPostgresConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "chk_inventory_available", TableName: "inventory_items"}
	err := Wrap(CodeInsufficientStock, fmt.Errorf("reserve: %w", pgErr), "insufficient stock").
		WithDetails(map[string]any{"product_id": "p-1", "requested": 3})

	fields := LogFields(err)
	if fields["error_code"] != string(CodeInsufficientStock) {
		t.Fatalf("unexpected code: %v", fields["error_code"])
	}
	if fields["sqlstate"] != "23514" || fields["pg_constraint"] != "chk_inventory_available" {
		t.Fatalf("postgres fields missing: %v", fields)
	}
	if fields["product_id"] != "p-1" {
		t.Fatalf("expected product_id from details: %v", fields)
	}
	if _, ok := fields["requested"]; ok {
		t.Fatalf("untraced detail key copied: %v", fields)
	}
	if causes, _ := fields["error_causes"].([]string); len(causes) < 2 {
		t.Fatalf("expected the wrapped causes, got %v", fields["error_causes"])
	}
}

func TestLogFieldsForPlainError(t *testing.T) {
	fields := LogFields(stdErrors.New("boom"))
	if fields["error_code"] != string(CodeInternal) || fields["retryable"] != false {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if _, ok := fields["sqlstate"]; ok {
		t.Fatalf("sqlstate set for non-postgres error")
	}
	if LogFields(nil) != nil {
		t.Fatalf("nil error should yield nil fields")
	}
}
