package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:db_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db, 0)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_PassesTypedErrorsThrough(t *testing.T) {
	client := NewFromConn(newTestDB(t), 0)
	want := pkgerrors.New(pkgerrors.CodeEmptyCart, "empty")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected typed error to pass through, got %v", err)
	}
}

func TestWithTx_TimeoutIsTransient(t *testing.T) {
	client := NewFromConn(newTestDB(t), 20*time.Millisecond)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		<-tx.Statement.Context.Done()
		return tx.Statement.Context.Err()
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeTransientStore) {
		t.Fatalf("expected transient store error, got %v", err)
	}
}

func TestStatementLoggerReportsSlowQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	conn := newTestDB(t).Session(&gorm.Session{Logger: statementLogger(logg, time.Nanosecond)})
	var count int64
	if err := conn.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if !strings.Contains(buf.String(), "SLOW SQL") {
		t.Fatalf("expected slow statement in log, got %q", buf.String())
	}

	buf.Reset()
	var missing testModel
	conn = conn.Session(&gorm.Session{Logger: statementLogger(logg, time.Hour)})
	_ = conn.Where("name = ?", "nobody").First(&missing).Error
	if strings.Contains(buf.String(), "record not found") {
		t.Fatalf("missing rows should not be logged: %q", buf.String())
	}
}

func TestStatementLoggerDisabledWithoutThreshold(t *testing.T) {
	if statementLogger(nil, time.Second) != gormlogger.Discard {
		t.Fatal("nil logger should discard")
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	if statementLogger(logg, 0) != gormlogger.Discard {
		t.Fatal("zero threshold should discard")
	}
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t), 0)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestMapError(t *testing.T) {
	if MapError(nil, "x") != nil {
		t.Fatal("nil should map to nil")
	}
	if !pkgerrors.IsCode(MapError(gorm.ErrRecordNotFound, "load"), pkgerrors.CodeNotFound) {
		t.Fatal("record not found should map to NOT_FOUND")
	}
	if !pkgerrors.IsCode(MapError(&pgconn.PgError{Code: "40P01"}, "deadlock"), pkgerrors.CodeTransientStore) {
		t.Fatal("deadlock should be transient")
	}
	if !pkgerrors.IsCode(MapError(&pgconn.PgError{Code: "08006"}, "conn"), pkgerrors.CodeTransientStore) {
		t.Fatal("connection failure should be transient")
	}
	if !pkgerrors.IsCode(MapError(&pgconn.PgError{Code: "23505"}, "dup"), pkgerrors.CodeInternal) {
		t.Fatal("unique violation should map to internal")
	}
}
