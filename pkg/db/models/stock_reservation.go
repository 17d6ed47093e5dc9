package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/enums"
)

// StockReservation is a hold of Qty units of a product on behalf of an order.
type StockReservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	Qty       int                     `gorm:"column:qty;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;not null;default:'active'"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *StockReservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
