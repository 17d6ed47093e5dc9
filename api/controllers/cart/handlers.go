package cart

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/retroquest/storefront-backend/api/middleware"
	"github.com/retroquest/storefront-backend/api/responses"
	"github.com/retroquest/storefront-backend/api/validators"
	cartsvc "github.com/retroquest/storefront-backend/internal/cart"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
)

// cartOp is one cart mutation or read on behalf of the caller. Every cart
// endpoint answers with the freshly priced cart.
type cartOp func(r *http.Request, w http.ResponseWriter, userID uuid.UUID) (*cartsvc.View, error)

func serveCart(svc cartsvc.Service, logg *logger.Logger, op cartOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := op(r, w, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartView returns the caller's cart priced at current catalog prices.
func CartView(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serveCart(svc, logg, func(r *http.Request, _ http.ResponseWriter, userID uuid.UUID) (*cartsvc.View, error) {
		return svc.View(r.Context(), userID)
	})
}

// CartAddItem sets the quantity of a product in the caller's cart.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serveCart(svc, logg, func(r *http.Request, w http.ResponseWriter, userID uuid.UUID) (*cartsvc.View, error) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), userID, payload.ProductID, payload.Quantity)
	})
}

// CartUpdateItem changes the quantity of a product already in the cart.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serveCart(svc, logg, func(r *http.Request, w http.ResponseWriter, userID uuid.UUID) (*cartsvc.View, error) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			return nil, err
		}
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateQuantity(r.Context(), userID, productID, payload.Quantity)
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serveCart(svc, logg, func(r *http.Request, _ http.ResponseWriter, userID uuid.UUID) (*cartsvc.View, error) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), userID, productID)
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return serveCart(svc, logg, func(r *http.Request, _ http.ResponseWriter, userID uuid.UUID) (*cartsvc.View, error) {
		return svc.Clear(r.Context(), userID)
	})
}
