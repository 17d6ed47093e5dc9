package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/types"
)

// Order is the immutable purchase record produced by checkout. Only the
// lifecycle fields change after creation; Version guards concurrent updates.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;not null"`
	TransactionID   *string             `gorm:"column:transaction_id"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	PaymentError    *string             `gorm:"column:payment_error"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;not null"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null"`
	TotalCents      int                 `gorm:"column:total_cents;not null"`
	TrackingCode    *string             `gorm:"column:tracking_code"`
	Notes           *string             `gorm:"column:notes"`
	CancelledBy     *uuid.UUID          `gorm:"column:cancelled_by;type:uuid"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	ShippedAt       *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time          `gorm:"column:delivered_at"`
	Version         int                 `gorm:"column:version;not null;default:1"`
	Items           []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
