package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retroquest/storefront-backend/pkg/enums"
)

// OrderLine is the line snapshot carried by order_created.
type OrderLine struct {
	ProductID       uuid.UUID       `json:"product_id"`
	Title           string          `json:"title"`
	UnitPriceCents  int             `json:"unit_price_cents"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Qty             int             `json:"qty"`
	TotalCents      int             `json:"total_cents"`
}

// OrderCreatedEvent is emitted when checkout converts a cart into an order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Items         []OrderLine         `json:"items"`
	SubtotalCents int                 `json:"subtotal_cents"`
	ShippingCents int                 `json:"shipping_cents"`
	TotalCents    int                 `json:"total_cents"`
}

// OrderPaidEvent is emitted when payment is confirmed and stock committed.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	UserID        uuid.UUID `json:"user_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	TotalCents    int       `json:"total_cents"`
	PaidAt        time.Time `json:"paid_at"`
}

// PaymentFailedEvent is emitted when a pending payment is marked failed.
type PaymentFailedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
	Reason  string    `json:"reason,omitempty"`
}

// OrderShippedEvent carries the tracking code handed to the carrier.
type OrderShippedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	UserID       uuid.UUID `json:"user_id"`
	TrackingCode string    `json:"tracking_code"`
	ShippedAt    time.Time `json:"shipped_at"`
}

// OrderDeliveredEvent marks the terminal happy path.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// OrderCancelledEvent is emitted when an order is cancelled and its stock returned.
type OrderCancelledEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	UserID         uuid.UUID         `json:"user_id"`
	CancelledBy    uuid.UUID         `json:"cancelled_by"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	CancelledAt    time.Time         `json:"cancelled_at"`
}

// OrderExpiredEvent is emitted when an unpaid order outlives the reservation TTL.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
	TTL       string    `json:"ttl"`
}
