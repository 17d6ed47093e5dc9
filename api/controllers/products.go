package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/retroquest/storefront-backend/api/responses"
	"github.com/retroquest/storefront-backend/api/validators"
	productsvc "github.com/retroquest/storefront-backend/internal/products"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
)

const maxTitleLength = 200

type createProductRequest struct {
	Title           string          `json:"title" validate:"required,max=200"`
	Condition       string          `json:"condition" validate:"omitempty,max=64"`
	PriceCents      int             `json:"price_cents" validate:"gte=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	InitialStock    int             `json:"initial_stock" validate:"gte=0"`
}

type updatePricingRequest struct {
	Title           *string          `json:"title,omitempty"`
	PriceCents      *int             `json:"price_cents,omitempty" validate:"omitempty,gte=0"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	IsActive        *bool            `json:"is_active,omitempty"`
}

type adjustStockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// ProductDetail returns a catalog entry with its stock counters.
func ProductDetail(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// AdminCreateProduct lists a new product with its opening stock.
func AdminCreateProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Create(r.Context(), productsvc.CreateInput{
			Title:           validators.SanitizeString(payload.Title, maxTitleLength),
			Condition:       validators.SanitizeString(payload.Condition, 64),
			PriceCents:      payload.PriceCents,
			DiscountPercent: payload.DiscountPercent,
			InitialStock:    payload.InitialStock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

// AdminUpdatePricing changes price, discount, title or availability. Existing
// orders keep their snapshots.
func AdminUpdatePricing(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updatePricingRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := productsvc.UpdatePricingInput{
			PriceCents:      payload.PriceCents,
			DiscountPercent: payload.DiscountPercent,
			IsActive:        payload.IsActive,
		}
		if payload.Title != nil {
			title := validators.SanitizeString(*payload.Title, maxTitleLength)
			input.Title = &title
		}

		product, err := svc.UpdatePricing(r.Context(), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// AdminAdjustStock adds or removes sellable units.
func AdminAdjustStock(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.AdjustStock(r.Context(), productID, payload.Delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}
