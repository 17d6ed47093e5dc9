package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/pagination"
	"github.com/retroquest/storefront-backend/pkg/types"
)

// LineItemDTO is the priced snapshot of one purchased product.
type LineItemDTO struct {
	ProductID       uuid.UUID       `json:"product_id"`
	Title           string          `json:"title"`
	UnitPriceCents  int             `json:"unit_price_cents"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Qty             int             `json:"qty"`
	TotalCents      int             `json:"total_cents"`
}

// OrderDTO is the API representation of an order.
type OrderDTO struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	TransactionID   *string             `json:"transaction_id,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	PaymentError    *string             `json:"payment_error,omitempty"`
	ShippingAddress types.Address       `json:"shipping_address"`
	Items           []LineItemDTO       `json:"items"`
	SubtotalCents   int                 `json:"subtotal_cents"`
	ShippingCents   int                 `json:"shipping_cents"`
	TotalCents      int                 `json:"total_cents"`
	TrackingCode    *string             `json:"tracking_code,omitempty"`
	Notes           *string             `json:"notes,omitempty"`
	CancelledBy     *uuid.UUID          `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	ShippedAt       *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	Version         int                 `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// OrderList is a page of orders with the admin totals alongside.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
	pagination.Totals
}

// ToDTO converts a persisted order.
func ToDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	items := make([]LineItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemDTO{
			ProductID:       item.ProductID,
			Title:           item.Title,
			UnitPriceCents:  item.UnitPriceCents,
			DiscountPercent: item.DiscountPercent,
			Qty:             item.Qty,
			TotalCents:      item.TotalCents,
		})
	}
	return &OrderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		TransactionID:   order.TransactionID,
		PaidAt:          order.PaidAt,
		PaymentError:    order.PaymentError,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		SubtotalCents:   order.SubtotalCents,
		ShippingCents:   order.ShippingCents,
		TotalCents:      order.TotalCents,
		TrackingCode:    order.TrackingCode,
		Notes:           order.Notes,
		CancelledBy:     order.CancelledBy,
		CancelledAt:     order.CancelledAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toList(page *OrderPage, params pagination.Params) *OrderList {
	out := &OrderList{
		Orders:     make([]OrderDTO, 0, len(page.Orders)),
		NextCursor: page.NextCursor,
		Totals:     pagination.NewTotals(page.Total, params),
	}
	for i := range page.Orders {
		out.Orders = append(out.Orders, *ToDTO(&page.Orders[i]))
	}
	return out
}
