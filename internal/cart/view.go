package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retroquest/storefront-backend/internal/pricing"
	"github.com/retroquest/storefront-backend/pkg/db/models"
)

// ItemView is one cart line priced at the product's current price.
type ItemView struct {
	ProductID           uuid.UUID       `json:"product_id"`
	Title               string          `json:"title"`
	Condition           string          `json:"condition"`
	Quantity            int             `json:"quantity"`
	UnitPriceCents      int             `json:"unit_price_cents"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	EffectivePriceCents int             `json:"effective_price_cents"`
	LineTotalCents      int             `json:"line_total_cents"`
	AvailableQty        int             `json:"available_qty"`
	Purchasable         bool            `json:"purchasable"`
}

// View is the priced cart returned by every cart operation.
type View struct {
	CartID        uuid.UUID  `json:"cart_id"`
	UserID        uuid.UUID  `json:"user_id"`
	Items         []ItemView `json:"items"`
	ItemCount     int        `json:"item_count"`
	SubtotalCents int        `json:"subtotal_cents"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func buildView(cart *models.Cart) (*View, error) {
	view := &View{
		CartID:    cart.ID,
		UserID:    cart.UserID,
		Items:     make([]ItemView, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range itemsOf(cart) {
		line := ItemView{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.Product == nil {
			view.Items = append(view.Items, line)
			continue
		}
		quote, err := pricing.Price(pricing.Line{
			UnitPriceCents:  item.Product.PriceCents,
			DiscountPercent: item.Product.DiscountPercent,
			Quantity:        item.Quantity,
		})
		if err != nil {
			return nil, err
		}
		line.Title = item.Product.Title
		line.Condition = item.Product.Condition
		line.UnitPriceCents = item.Product.PriceCents
		line.DiscountPercent = item.Product.DiscountPercent
		line.EffectivePriceCents = quote.EffectivePriceCents
		line.LineTotalCents = quote.LineTotalCents
		if item.Product.Inventory != nil {
			line.AvailableQty = item.Product.Inventory.AvailableQty
		}
		line.Purchasable = item.Product.IsActive && line.AvailableQty >= item.Quantity

		view.Items = append(view.Items, line)
		view.ItemCount += item.Quantity
		view.SubtotalCents += quote.LineTotalCents
	}
	return view, nil
}
