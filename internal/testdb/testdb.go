// Package testdb opens throwaway sqlite databases migrated with the storefront schema.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/retroquest/storefront-backend/pkg/db/models"
)

// Open returns an isolated in-memory database. The pool is pinned to a single
// connection so concurrent callers queue on the pool instead of tripping
// sqlite's table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:rq_%s?mode=memory&cache=shared&_foreign_keys=off", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedProduct inserts an active product with the given stock.
func SeedProduct(t testing.TB, db *gorm.DB, product models.Product, available int) models.Product {
	t.Helper()
	if product.Title == "" {
		product.Title = "Game Boy Color"
	}
	product.IsActive = true
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: available}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return product
}

// Inventory loads the stock row for productID.
func Inventory(t testing.TB, db *gorm.DB, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var inv models.InventoryItem
	if err := db.First(&inv, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory %s: %v", productID, err)
	}
	return inv
}
