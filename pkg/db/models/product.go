package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog listing. Price and discount are read live for carts
// and snapshotted into order line items at checkout.
type Product struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Title           string          `gorm:"column:title;not null"`
	Condition       string          `gorm:"column:condition;not null;default:'used'"`
	PriceCents      int             `gorm:"column:price_cents;not null"`
	DiscountPercent decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null;default:0"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	Inventory       *InventoryItem  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
