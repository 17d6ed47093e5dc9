package controllers

import (
	"net/http"
	"strings"

	"github.com/retroquest/storefront-backend/api/middleware"
	"github.com/retroquest/storefront-backend/api/responses"
	"github.com/retroquest/storefront-backend/api/validators"
	internalorders "github.com/retroquest/storefront-backend/internal/orders"
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
)

type updateStatusRequest struct {
	Status       string `json:"status" validate:"required"`
	TrackingCode string `json:"tracking_code,omitempty" validate:"max=64"`
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=paid failed"`
	TransactionID string `json:"transaction_id,omitempty" validate:"max=128"`
	Reason        string `json:"reason,omitempty" validate:"max=500"`
}

// AdminListOrders pages through every order, optionally filtered by status.
// Without a cursor it serves numbered pages, starting at page 1.
func AdminListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.Cursor == "" && params.Page == 0 {
			params.Page = 1
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			status = &parsed
		}

		list, err := svc.ListAll(r.Context(), actor, params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminUpdateOrderStatus ships, delivers or cancels an order.
func AdminUpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateStatus(r.Context(), actor, orderID, internalorders.StatusUpdateInput{
			Status:       enums.OrderStatus(strings.TrimSpace(payload.Status)),
			TrackingCode: validators.NormalizeTrackingCode(payload.TrackingCode, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminUpdatePayment records the payment provider's verdict for an order.
func AdminUpdatePayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updatePaymentRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var order *internalorders.OrderDTO
		switch enums.PaymentStatus(payload.PaymentStatus) {
		case enums.PaymentStatusPaid:
			order, err = svc.ConfirmPayment(r.Context(), actor, orderID, validators.SanitizeString(payload.TransactionID, 128))
		default:
			order, err = svc.FailPayment(r.Context(), actor, orderID, validators.SanitizeString(payload.Reason, 500))
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
