package orders

import (
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
)

// Transition names a lifecycle operation.
type Transition string

const (
	TransitionConfirmPayment Transition = "confirm_payment"
	TransitionFailPayment    Transition = "fail_payment"
	TransitionShip           Transition = "ship"
	TransitionDeliver        Transition = "deliver"
	TransitionCancel         Transition = "cancel"
	TransitionExpire         Transition = "expire"
)

var validNext = map[enums.OrderStatus]map[enums.OrderStatus]bool{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing: true, enums.OrderStatusCancelled: true},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped: true, enums.OrderStatusCancelled: true},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered: true},
	enums.OrderStatusDelivered:  {},
	enums.OrderStatusCancelled:  {},
}

// CanTransition reports whether the status table allows from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	return validNext[from][to]
}

// State is the pair of order and payment status a transition is checked against.
type State struct {
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

type rule struct {
	target enums.OrderStatus
	// payment, when set, is the payment status the order must be in.
	payment enums.PaymentStatus
	// keepStatus marks payment-only transitions that leave status untouched.
	keepStatus bool
}

var rules = map[Transition]rule{
	TransitionConfirmPayment: {target: enums.OrderStatusProcessing, payment: enums.PaymentStatusPending},
	TransitionFailPayment:    {keepStatus: true, payment: enums.PaymentStatusPending},
	TransitionShip:           {target: enums.OrderStatusShipped},
	TransitionDeliver:        {target: enums.OrderStatusDelivered},
	TransitionCancel:         {target: enums.OrderStatusCancelled},
	TransitionExpire:         {target: enums.OrderStatusCancelled},
}

// Allowed checks t against the current state and returns an
// INVALID_TRANSITION error carrying that state when it is not permitted.
func Allowed(current State, t Transition) error {
	r, ok := rules[t]
	if !ok {
		return invalidTransition(current, t)
	}
	if r.payment != "" && current.PaymentStatus != r.payment {
		return invalidTransition(current, t)
	}
	if r.keepStatus {
		if current.Status.IsTerminal() {
			return invalidTransition(current, t)
		}
		return nil
	}
	if !CanTransition(current.Status, r.target) {
		return invalidTransition(current, t)
	}
	// Payment is only confirmed from pending, so pending orders alone move to processing.
	if r.target == enums.OrderStatusProcessing && current.Status != enums.OrderStatusPending {
		return invalidTransition(current, t)
	}
	// Expiry applies to unpaid orders only.
	if t == TransitionExpire && (current.Status != enums.OrderStatusPending || current.PaymentStatus == enums.PaymentStatusPaid) {
		return invalidTransition(current, t)
	}
	return nil
}

// TransitionForStatus maps an admin status update onto the transition that
// produces it. Processing is reachable only through payment confirmation.
func TransitionForStatus(target enums.OrderStatus) (Transition, bool) {
	switch target {
	case enums.OrderStatusShipped:
		return TransitionShip, true
	case enums.OrderStatusDelivered:
		return TransitionDeliver, true
	case enums.OrderStatusCancelled:
		return TransitionCancel, true
	default:
		return "", false
	}
}

// InvalidTransitionDetail is attached to INVALID_TRANSITION errors.
type InvalidTransitionDetail struct {
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Attempted     Transition          `json:"attempted"`
}

func invalidTransition(current State, t Transition) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "transition not allowed from current state").
		WithDetails(InvalidTransitionDetail{
			Status:        current.Status,
			PaymentStatus: current.PaymentStatus,
			Attempted:     t,
		})
}
