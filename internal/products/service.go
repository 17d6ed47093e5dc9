package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retroquest/storefront-backend/internal/pricing"
	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
)

type stockAdjuster interface {
	Adjust(ctx context.Context, productID uuid.UUID, delta int) (int, error)
}

// Service exposes the admin catalog surface needed to stock the storefront.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*DTO, error)
	Get(ctx context.Context, id uuid.UUID) (*DTO, error)
	UpdatePricing(ctx context.Context, id uuid.UUID, input UpdatePricingInput) (*DTO, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*DTO, error)
}

type service struct {
	repo  *Repository
	stock stockAdjuster
}

// NewService builds the product service.
func NewService(repo *Repository, stock stockAdjuster) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	return &service{repo: repo, stock: stock}, nil
}

// CreateInput describes a new listing.
type CreateInput struct {
	Title           string
	Condition       string
	PriceCents      int
	DiscountPercent decimal.Decimal
	InitialStock    int
}

// UpdatePricingInput replaces the listing's commercial fields.
type UpdatePricingInput struct {
	Title           *string
	PriceCents      *int
	DiscountPercent *decimal.Decimal
	IsActive        *bool
}

// DTO is the admin view of a product.
type DTO struct {
	ID                  uuid.UUID       `json:"id"`
	Title               string          `json:"title"`
	Condition           string          `json:"condition"`
	PriceCents          int             `json:"price_cents"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	EffectivePriceCents int             `json:"effective_price_cents"`
	IsActive            bool            `json:"is_active"`
	AvailableQty        int             `json:"available_qty"`
	ReservedQty         int             `json:"reserved_qty"`
	SoldQty             int             `json:"sold_qty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (s *service) Create(ctx context.Context, input CreateInput) (*DTO, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.InitialStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must be >= 0")
	}
	if _, err := pricing.EffectivePrice(input.PriceCents, input.DiscountPercent); err != nil {
		return nil, err
	}
	condition := strings.TrimSpace(input.Condition)
	if condition == "" {
		condition = "used"
	}

	product := &models.Product{
		Title:           title,
		Condition:       condition,
		PriceCents:      input.PriceCents,
		DiscountPercent: input.DiscountPercent,
		IsActive:        true,
	}
	if err := s.repo.Create(ctx, product, input.InitialStock); err != nil {
		return nil, db.MapError(err, "create product")
	}
	return s.Get(ctx, product.ID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*DTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDTO(product)
}

func (s *service) UpdatePricing(ctx context.Context, id uuid.UUID, input UpdatePricingInput) (*DTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be blank")
		}
		product.Title = title
	}
	if input.PriceCents != nil {
		product.PriceCents = *input.PriceCents
	}
	if input.DiscountPercent != nil {
		product.DiscountPercent = *input.DiscountPercent
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if _, err := pricing.EffectivePrice(product.PriceCents, product.DiscountPercent); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePricing(ctx, product); err != nil {
		return nil, db.MapError(err, "update product")
	}
	return s.Get(ctx, id)
}

func (s *service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*DTO, error) {
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if _, err := s.stock.Adjust(ctx, id, delta); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func toDTO(product *models.Product) (*DTO, error) {
	effective, err := pricing.Price(pricing.Line{
		UnitPriceCents:  product.PriceCents,
		DiscountPercent: product.DiscountPercent,
		Quantity:        1,
	})
	if err != nil {
		return nil, err
	}
	dto := &DTO{
		ID:                  product.ID,
		Title:               product.Title,
		Condition:           product.Condition,
		PriceCents:          product.PriceCents,
		DiscountPercent:     product.DiscountPercent,
		EffectivePriceCents: effective.EffectivePriceCents,
		IsActive:            product.IsActive,
		UpdatedAt:           product.UpdatedAt,
	}
	if inv := product.Inventory; inv != nil {
		dto.AvailableQty = inv.AvailableQty
		dto.ReservedQty = inv.ReservedQty
		dto.SoldQty = inv.SoldQty
	}
	return dto, nil
}
