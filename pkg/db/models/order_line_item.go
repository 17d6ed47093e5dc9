package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderLineItem captures the product snapshot taken at checkout.
type OrderLineItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Title           string          `gorm:"column:title;not null"`
	UnitPriceCents  int             `gorm:"column:unit_price_cents;not null"`
	DiscountPercent decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	Qty             int             `gorm:"column:qty;not null"`
	TotalCents      int             `gorm:"column:total_cents;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
