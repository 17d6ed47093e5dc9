package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/internal/cart"
	"github.com/retroquest/storefront-backend/internal/orders"
	"github.com/retroquest/storefront-backend/internal/pricing"
	product "github.com/retroquest/storefront-backend/internal/products"
	"github.com/retroquest/storefront-backend/internal/stock"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/metrics"
	"github.com/retroquest/storefront-backend/pkg/outbox"
	"github.com/retroquest/storefront-backend/pkg/outbox/payloads"
	"github.com/retroquest/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID, input Input) (*orders.OrderDTO, error)
}

// Input is the payload supplied by the caller at checkout.
type Input struct {
	ShippingAddress types.Address       `json:"shipping_address"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	Notes           *string             `json:"notes,omitempty"`
}

// Validate rejects incomplete addresses and unsupported payment methods.
func (in Input) Validate() error {
	if missing := in.ShippingAddress.MissingFields(); len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing_fields": missing})
	}
	if !in.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"payment_method": in.PaymentMethod})
	}
	return nil
}

// Params wires the checkout service.
type Params struct {
	Tx            txRunner
	Carts         cart.CartRepository
	Orders        orders.Repository
	Products      *product.Repository
	Ledger        *stock.Ledger
	Outbox        outboxPublisher
	Metrics       *metrics.StorefrontMetrics
	Logger        *logger.Logger
	ShippingCents int
}

type service struct {
	tx            txRunner
	carts         cart.CartRepository
	orders        orders.Repository
	products      *product.Repository
	ledger        *stock.Ledger
	outbox        outboxPublisher
	metrics       *metrics.StorefrontMetrics
	logg          *logger.Logger
	shippingCents int
}

// NewService builds the checkout service.
func NewService(p Params) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.ShippingCents < 0 {
		return nil, fmt.Errorf("shipping fee must be >= 0")
	}
	return &service{
		tx:            p.Tx,
		carts:         p.Carts,
		orders:        p.Orders,
		products:      p.Products,
		ledger:        p.Ledger,
		outbox:        p.Outbox,
		metrics:       p.Metrics,
		logg:          p.Logger,
		shippingCents: p.ShippingCents,
	}, nil
}

// Execute converts the user's cart into a pending order. Reservation,
// order persistence, cart clearing and the order_created event share one
// transaction; any failure rolls all of them back.
func (s *service) Execute(ctx context.Context, userID uuid.UUID, input Input) (*orders.OrderDTO, error) {
	start := time.Now()
	order, err := s.execute(ctx, userID, input)
	s.metrics.ObserveCheckout(resultLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, userID.String()), order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"items":       len(order.Items),
			"total_cents": order.TotalCents,
		})
		s.logg.Info(logCtx, "checkout completed")
	}
	return orders.ToDTO(order), nil
}

func (s *service) execute(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	notes := normalizeNotes(input.Notes)

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)
		ledger := s.ledger.WithTx(tx)

		record, err := carts.LockByUser(ctx, userID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return emptyCart()
			}
			return err
		}
		record, err = carts.FindByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(record.Items) == 0 {
			return emptyCart()
		}

		items := append([]models.CartItem(nil), record.Items...)
		sort.Slice(items, func(i, j int) bool {
			return items[i].ProductID.String() < items[j].ProductID.String()
		})

		orderID := uuid.New()
		requests := make([]stock.Request, 0, len(items))
		productIDs := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			requests = append(requests, stock.Request{ProductID: item.ProductID, Qty: item.Quantity})
			productIDs = append(productIDs, item.ProductID)
		}
		if _, err := ledger.ReserveAll(ctx, orderID, requests); err != nil {
			return err
		}

		products, err := s.products.WithTx(tx).FindByIDs(ctx, productIDs)
		if err != nil {
			return err
		}
		lines, err := snapshot(items, products)
		if err != nil {
			return err
		}
		pricingLines := make([]pricing.Line, 0, len(lines))
		for _, line := range lines {
			pricingLines = append(pricingLines, pricing.Line{
				UnitPriceCents:  line.UnitPriceCents,
				DiscountPercent: line.DiscountPercent,
				Quantity:        line.Qty,
			})
		}
		totals, quotes, err := pricing.Summarize(pricingLines, s.shippingCents)
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = orderID
			lines[i].TotalCents = quotes[i].LineTotalCents
		}

		order := &models.Order{
			ID:              orderID,
			UserID:          userID,
			Status:          enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusPending,
			PaymentMethod:   input.PaymentMethod,
			ShippingAddress: input.ShippingAddress,
			SubtotalCents:   totals.SubtotalCents,
			ShippingCents:   totals.ShippingCents,
			TotalCents:      totals.TotalCents,
			Notes:           notes,
			Version:         1,
			Items:           lines,
		}
		if err := ordersRepo.Create(ctx, order); err != nil {
			return err
		}
		if err := carts.ClearItems(ctx, record.ID); err != nil {
			return err
		}
		if err := s.emitOrderCreated(ctx, tx, order); err != nil {
			return err
		}

		result, err = ordersRepo.FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			ProductID:       item.ProductID,
			Title:           item.Title,
			UnitPriceCents:  item.UnitPriceCents,
			DiscountPercent: item.DiscountPercent,
			Qty:             item.Qty,
			TotalCents:      item.TotalCents,
		})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: string(enums.UserRoleCustomer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			PaymentMethod: order.PaymentMethod,
			Items:         lines,
			SubtotalCents: order.SubtotalCents,
			ShippingCents: order.ShippingCents,
			TotalCents:    order.TotalCents,
		},
	})
}

// snapshot freezes title, price and discount of each purchased product.
func snapshot(items []models.CartItem, products map[uuid.UUID]models.Product) ([]models.OrderLineItem, error) {
	lines := make([]models.OrderLineItem, 0, len(items))
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok || !p.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not available").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		lines = append(lines, models.OrderLineItem{
			ProductID:       p.ID,
			Title:           p.Title,
			UnitPriceCents:  p.PriceCents,
			DiscountPercent: p.DiscountPercent,
			Qty:             item.Quantity,
		})
	}
	return lines, nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart has no items")
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(pkgerrors.CodeOf(err))
}
