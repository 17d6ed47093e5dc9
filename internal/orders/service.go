package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/internal/stock"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/metrics"
	"github.com/retroquest/storefront-backend/pkg/outbox"
	"github.com/retroquest/storefront-backend/pkg/outbox/payloads"
	"github.com/retroquest/storefront-backend/pkg/pagination"
)

const defaultTrackingPrefix = "RQ"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// Service drives orders through their lifecycle.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error)
	ListMine(ctx context.Context, actor Actor, params pagination.Params) (*OrderList, error)
	ListAll(ctx context.Context, actor Actor, params pagination.Params, status *enums.OrderStatus) (*OrderList, error)
	ConfirmPayment(ctx context.Context, actor Actor, orderID uuid.UUID, transactionID string) (*OrderDTO, error)
	FailPayment(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, input StatusUpdateInput) (*OrderDTO, error)
	MarkShipped(ctx context.Context, actor Actor, orderID uuid.UUID, trackingCode string) (*OrderDTO, error)
	MarkDelivered(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error)
	ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// StatusUpdateInput is the admin status change request.
type StatusUpdateInput struct {
	Status       enums.OrderStatus
	TrackingCode string
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repository     Repository
	Tx             txRunner
	Ledger         *stock.Ledger
	Outbox         outboxPublisher
	Metrics        *metrics.StorefrontMetrics
	Logger         *logger.Logger
	TrackingPrefix string
	Now            func() time.Time
}

type service struct {
	repo           Repository
	tx             txRunner
	ledger         *stock.Ledger
	outbox         outboxPublisher
	metrics        *metrics.StorefrontMetrics
	logg           *logger.Logger
	trackingPrefix string
	now            func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	prefix := strings.TrimSpace(params.TrackingPrefix)
	if prefix == "" {
		prefix = defaultTrackingPrefix
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:           params.Repository,
		tx:             params.Tx,
		ledger:         params.Ledger,
		outbox:         params.Outbox,
		metrics:        params.Metrics,
		logg:           params.Logger,
		trackingPrefix: prefix,
		now:            now,
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.storeErr(err, "load order")
	}
	if err := ownerOrAdmin(actor, order); err != nil {
		return nil, err
	}
	return ToDTO(order), nil
}

func (s *service) ListMine(ctx context.Context, actor Actor, params pagination.Params) (*OrderList, error) {
	userID := actor.UserID
	page, err := s.repo.List(ctx, params, ListFilters{UserID: &userID})
	if err != nil {
		return nil, s.storeErr(err, "list orders")
	}
	return toList(page, params), nil
}

func (s *service) ListAll(ctx context.Context, actor Actor, params pagination.Params, status *enums.OrderStatus) (*OrderList, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(map[string]any{"status": *status})
	}
	page, err := s.repo.List(ctx, params, ListFilters{Status: status})
	if err != nil {
		return nil, s.storeErr(err, "list orders")
	}
	return toList(page, params), nil
}

// ConfirmPayment marks the order paid, moves it to processing and commits
// every reservation it holds, all in one transaction.
func (s *service) ConfirmPayment(ctx context.Context, actor Actor, orderID uuid.UUID, transactionID string) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	txID := strings.TrimSpace(transactionID)
	return s.apply(ctx, orderID, &actor, step{
		transition: TransitionConfirmPayment,
		mutate: func(order *models.Order, now time.Time) map[string]any {
			order.Status = enums.OrderStatusProcessing
			order.PaymentStatus = enums.PaymentStatusPaid
			order.PaidAt = &now
			updates := map[string]any{
				"status":         order.Status,
				"payment_status": order.PaymentStatus,
				"paid_at":        now,
				"payment_error":  nil,
			}
			if txID != "" {
				order.TransactionID = &txID
				updates["transaction_id"] = txID
			}
			return updates
		},
		stock: func(ctx context.Context, ledger *stock.Ledger, orderID uuid.UUID) error {
			return ledger.CommitOrder(ctx, orderID)
		},
		event: func(order *models.Order, _ State, now time.Time) outbox.DomainEvent {
			return orderEvent(enums.EventOrderPaid, order, payloads.OrderPaidEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				TransactionID: txID,
				TotalCents:    order.TotalCents,
				PaidAt:        now,
			})
		},
	})
}

// FailPayment records a failed payment. Status and reservations are left
// as they are; a cancel releases the held stock.
func (s *service) FailPayment(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	return s.apply(ctx, orderID, &actor, step{
		transition: TransitionFailPayment,
		mutate: func(order *models.Order, _ time.Time) map[string]any {
			order.PaymentStatus = enums.PaymentStatusFailed
			updates := map[string]any{"payment_status": order.PaymentStatus}
			if reason != "" {
				order.PaymentError = &reason
				updates["payment_error"] = reason
			}
			return updates
		},
		event: func(order *models.Order, _ State, _ time.Time) outbox.DomainEvent {
			return orderEvent(enums.EventPaymentFailed, order, payloads.PaymentFailedEvent{
				OrderID: order.ID,
				UserID:  order.UserID,
				Reason:  reason,
			})
		},
	})
}

func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, input StatusUpdateInput) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").
			WithDetails(map[string]any{"status": input.Status})
	}
	transition, ok := TransitionForStatus(input.Status)
	if !ok {
		// pending and processing are never set directly; report the current state.
		order, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, s.storeErr(err, "load order")
		}
		return nil, invalidTransition(State{Status: order.Status, PaymentStatus: order.PaymentStatus}, Transition("set_"+string(input.Status)))
	}
	switch transition {
	case TransitionShip:
		return s.MarkShipped(ctx, actor, orderID, input.TrackingCode)
	case TransitionDeliver:
		return s.MarkDelivered(ctx, actor, orderID)
	default:
		return s.Cancel(ctx, actor, orderID)
	}
}

// MarkShipped moves a processing order to shipped, generating a tracking
// code when the order has none and none is supplied.
func (s *service) MarkShipped(ctx context.Context, actor Actor, orderID uuid.UUID, trackingCode string) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	trackingCode = strings.TrimSpace(trackingCode)
	return s.apply(ctx, orderID, &actor, step{
		transition: TransitionShip,
		mutate: func(order *models.Order, now time.Time) map[string]any {
			order.Status = enums.OrderStatusShipped
			order.ShippedAt = &now
			updates := map[string]any{"status": order.Status, "shipped_at": now}
			if order.TrackingCode == nil || *order.TrackingCode == "" {
				code := trackingCode
				if code == "" {
					code = s.trackingCode(now)
				}
				order.TrackingCode = &code
				updates["tracking_code"] = code
			}
			return updates
		},
		event: func(order *models.Order, _ State, now time.Time) outbox.DomainEvent {
			return orderEvent(enums.EventOrderShipped, order, payloads.OrderShippedEvent{
				OrderID:      order.ID,
				UserID:       order.UserID,
				TrackingCode: *order.TrackingCode,
				ShippedAt:    now,
			})
		},
	})
}

func (s *service) MarkDelivered(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.apply(ctx, orderID, &actor, step{
		transition: TransitionDeliver,
		mutate: func(order *models.Order, now time.Time) map[string]any {
			order.Status = enums.OrderStatusDelivered
			order.DeliveredAt = &now
			return map[string]any{"status": order.Status, "delivered_at": now}
		},
		event: func(order *models.Order, _ State, now time.Time) outbox.DomainEvent {
			return orderEvent(enums.EventOrderDelivered, order, payloads.OrderDeliveredEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				DeliveredAt: now,
			})
		},
	})
}

// Cancel aborts a pending or processing order and returns its stock:
// unpaid holds are released, committed units are restocked. Only the owner
// or an admin may cancel.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	return s.apply(ctx, orderID, &actor, step{
		transition: TransitionCancel,
		authorize: func(order *models.Order) error {
			return ownerOrAdmin(actor, order)
		},
		mutate: func(order *models.Order, now time.Time) map[string]any {
			by := actor.UserID
			order.Status = enums.OrderStatusCancelled
			order.CancelledBy = &by
			order.CancelledAt = &now
			return map[string]any{"status": order.Status, "cancelled_by": by, "cancelled_at": now}
		},
		stock: func(ctx context.Context, ledger *stock.Ledger, orderID uuid.UUID) error {
			return ledger.ReturnOrder(ctx, orderID)
		},
		event: func(order *models.Order, prev State, now time.Time) outbox.DomainEvent {
			return orderEvent(enums.EventOrderCancelled, order, payloads.OrderCancelledEvent{
				OrderID:        order.ID,
				UserID:         order.UserID,
				CancelledBy:    actor.UserID,
				PreviousStatus: prev.Status,
				CancelledAt:    now,
			})
		},
	})
}

// ExpireStale cancels unpaid pending orders older than ttl and releases
// their reservations. Orders paid or cancelled in the meantime are skipped.
// It returns how many orders were expired.
func (s *service) ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	cutoff := s.now().UTC().Add(-ttl)
	candidates, err := s.repo.FindUnpaidBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, s.storeErr(err, "find stale orders")
	}

	expired := 0
	var errs error
	for _, candidate := range candidates {
		_, err := s.apply(ctx, candidate.ID, nil, step{
			transition: TransitionExpire,
			mutate: func(order *models.Order, now time.Time) map[string]any {
				order.Status = enums.OrderStatusCancelled
				order.CancelledAt = &now
				return map[string]any{"status": order.Status, "cancelled_at": now}
			},
			stock: func(ctx context.Context, ledger *stock.Ledger, orderID uuid.UUID) error {
				return ledger.ReturnOrder(ctx, orderID)
			},
			event: func(order *models.Order, _ State, now time.Time) outbox.DomainEvent {
				return orderEvent(enums.EventOrderExpired, order, payloads.OrderExpiredEvent{
					OrderID:   order.ID,
					UserID:    order.UserID,
					ExpiredAt: now,
					TTL:       ttl.String(),
				})
			},
		})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			// settled concurrently
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", candidate.ID, err))
		}
	}
	return expired, errs
}

type step struct {
	transition Transition
	authorize  func(order *models.Order) error
	mutate     func(order *models.Order, now time.Time) map[string]any
	stock      func(ctx context.Context, ledger *stock.Ledger, orderID uuid.UUID) error
	event      func(order *models.Order, prev State, now time.Time) outbox.DomainEvent
}

// apply runs one lifecycle step atomically: the guarded versioned update,
// the stock settlement and the outbox event commit together or not at all.
func (s *service) apply(ctx context.Context, orderID uuid.UUID, actor *Actor, st step) (*OrderDTO, error) {
	now := s.now().UTC()
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if st.authorize != nil {
			if err := st.authorize(order); err != nil {
				return err
			}
		}
		prev := State{Status: order.Status, PaymentStatus: order.PaymentStatus}
		if err := Allowed(prev, st.transition); err != nil {
			return err
		}
		version := order.Version
		if err := repo.UpdateVersioned(ctx, order.ID, version, st.mutate(order, now)); err != nil {
			return err
		}
		if st.stock != nil {
			if err := st.stock(ctx, s.ledger.WithTx(tx), order.ID); err != nil {
				return err
			}
		}
		event := st.event(order, prev, now)
		if actor != nil {
			event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})

	s.metrics.ObserveTransition(string(st.transition), resultLabel(err))
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"transition": st.transition,
			"status":     result.Status,
			"version":    result.Version,
		})
		s.logg.Info(logCtx, "order transition applied")
	}
	return ToDTO(result), nil
}

func (s *service) trackingCode(now time.Time) string {
	return fmt.Sprintf("%s%d", s.trackingPrefix, now.UnixMilli())
}

func (s *service) storeErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, msg)
}

func orderEvent(eventType enums.OutboxEventType, order *models.Order, data any) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          data,
	}
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func ownerOrAdmin(actor Actor, order *models.Order) error {
	if actor.IsAdmin() || (actor.UserID != uuid.Nil && actor.UserID == order.UserID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(pkgerrors.CodeOf(err))
}
