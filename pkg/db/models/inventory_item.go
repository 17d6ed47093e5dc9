package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks stock counts per product. AvailableQty is what new
// reservations draw from; ReservedQty is held by unpaid orders; SoldQty is
// committed by paid orders.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	SoldQty      int       `gorm:"column:sold_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
