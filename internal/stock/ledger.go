// Package stock owns available-quantity accounting. Inventory counters are
// only ever written through the Ledger.
package stock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/metrics"
)

// Request asks for Qty units of ProductID.
type Request struct {
	ProductID uuid.UUID
	Qty       int
}

// InsufficientStockDetail is attached to INSUFFICIENT_STOCK errors.
type InsufficientStockDetail struct {
	ProductID    uuid.UUID `json:"product_id"`
	RequestedQty int       `json:"requested_qty"`
	AvailableQty int       `json:"available_qty"`
}

// Ledger performs atomic reserve/commit/release operations. Every operation
// runs in its own transaction, or in a savepoint when the ledger is bound to
// an outer transaction with WithTx.
type Ledger struct {
	db      *gorm.DB
	metrics *metrics.StorefrontMetrics
}

// NewLedger builds a ledger over conn. m may be nil.
func NewLedger(conn *gorm.DB, m *metrics.StorefrontMetrics) *Ledger {
	return &Ledger{db: conn, metrics: m}
}

// WithTx binds the ledger to tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	if tx == nil {
		return l
	}
	return &Ledger{db: tx, metrics: l.metrics}
}

// Available returns the sellable quantity for productID.
func (l *Ledger) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	var inv models.InventoryItem
	err := l.db.WithContext(ctx).Select("available_qty").First(&inv, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, productNotFound(productID)
	}
	if err != nil {
		return 0, db.MapError(err, "load inventory")
	}
	return inv.AvailableQty, nil
}

// Check is the advisory availability test used by cart mutations. It takes
// no hold on the stock.
func (l *Ledger) Check(ctx context.Context, productID uuid.UUID, qty int) error {
	available, err := l.Available(ctx, productID)
	if err != nil {
		return err
	}
	if available < qty {
		return insufficient(productID, qty, available)
	}
	return nil
}

// Adjust changes available stock by delta: positive to receive units,
// negative to write them off. Stock never goes below zero.
func (l *Ledger) Adjust(ctx context.Context, productID uuid.UUID, delta int) (int, error) {
	var available int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryItem{}).
			Where("product_id = ? AND available_qty + ? >= 0", productID, delta).
			Update("available_qty", gorm.Expr("available_qty + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		current, err := l.WithTx(tx).Available(ctx, productID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return insufficient(productID, -delta, current)
		}
		available = current
		return nil
	})
	if err != nil {
		return 0, db.MapError(err, "adjust stock")
	}
	return available, nil
}

// Reserve atomically moves qty units from available to reserved and records a
// reservation owned by orderID. A failed reserve leaves stock unchanged.
func (l *Ledger) Reserve(ctx context.Context, orderID, productID uuid.UUID, qty int) (*models.StockReservation, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be >= 1")
	}
	var reservation *models.StockReservation
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryItem{}).
			Where("product_id = ? AND available_qty >= ?", productID, qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty - ?", qty),
				"reserved_qty":  gorm.Expr("reserved_qty + ?", qty),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			available, err := l.WithTx(tx).Available(ctx, productID)
			if err != nil {
				return err
			}
			return insufficient(productID, qty, available)
		}

		reservation = &models.StockReservation{
			OrderID:   orderID,
			ProductID: productID,
			Qty:       qty,
			Status:    enums.ReservationStatusActive,
		}
		return tx.Create(reservation).Error
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			l.metrics.ObserveReservation(metrics.ReservationInsufficient, 0)
		}
		return nil, db.MapError(err, "reserve stock")
	}
	l.metrics.ObserveReservation(metrics.ReservationReserved, qty)
	return reservation, nil
}

// ReserveAll reserves every request for orderID in ascending product order,
// merging duplicate products. Either every request is reserved or none is:
// on the first shortage the reservations already taken are released and the
// INSUFFICIENT_STOCK error names the short product.
func (l *Ledger) ReserveAll(ctx context.Context, orderID uuid.UUID, requests []Request) ([]models.StockReservation, error) {
	ordered := mergeAndSort(requests)
	reservations := make([]models.StockReservation, 0, len(ordered))
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := l.WithTx(tx)
		for _, req := range ordered {
			reservation, err := ledger.Reserve(ctx, orderID, req.ProductID, req.Qty)
			if err != nil {
				for i := len(reservations) - 1; i >= 0; i-- {
					if relErr := ledger.Release(ctx, reservations[i].ID); relErr != nil {
						return fmt.Errorf("rollback reservation %s: %w", reservations[i].ID, relErr)
					}
				}
				return err
			}
			reservations = append(reservations, *reservation)
		}
		return nil
	})
	if err != nil {
		return nil, db.MapError(err, "reserve stock")
	}
	return reservations, nil
}

// Commit makes a reservation's deduction permanent. Committing twice is a
// no-op; committing a released reservation is an invalid transition.
func (l *Ledger) Commit(ctx context.Context, reservationID uuid.UUID) error {
	return l.transition(ctx, reservationID, transitionRule{
		name: metrics.ReservationCommitted,
		from: enums.ReservationStatusActive,
		to:   enums.ReservationStatusCommitted,
		noop: []enums.ReservationStatus{enums.ReservationStatusCommitted, enums.ReservationStatusRestocked},
		inventory: func(qty int) map[string]any {
			return map[string]any{
				"reserved_qty": gorm.Expr("reserved_qty - ?", qty),
				"sold_qty":     gorm.Expr("sold_qty + ?", qty),
			}
		},
		guard: "reserved_qty >= ?",
	})
}

// Release cancels an active reservation and returns its units to available
// stock. Releasing twice, or after commit, has no effect.
func (l *Ledger) Release(ctx context.Context, reservationID uuid.UUID) error {
	return l.transition(ctx, reservationID, transitionRule{
		name: metrics.ReservationReleased,
		from: enums.ReservationStatusActive,
		to:   enums.ReservationStatusReleased,
		noop: []enums.ReservationStatus{
			enums.ReservationStatusReleased,
			enums.ReservationStatusCommitted,
			enums.ReservationStatusRestocked,
		},
		inventory: func(qty int) map[string]any {
			return map[string]any{
				"available_qty": gorm.Expr("available_qty + ?", qty),
				"reserved_qty":  gorm.Expr("reserved_qty - ?", qty),
			}
		},
		guard: "reserved_qty >= ?",
	})
}

// Restock returns the units of a committed reservation to available stock,
// used when a paid order is cancelled. Restocking twice is a no-op.
func (l *Ledger) Restock(ctx context.Context, reservationID uuid.UUID) error {
	return l.transition(ctx, reservationID, transitionRule{
		name: metrics.ReservationRestocked,
		from: enums.ReservationStatusCommitted,
		to:   enums.ReservationStatusRestocked,
		noop: []enums.ReservationStatus{enums.ReservationStatusRestocked, enums.ReservationStatusReleased},
		inventory: func(qty int) map[string]any {
			return map[string]any{
				"available_qty": gorm.Expr("available_qty + ?", qty),
				"sold_qty":      gorm.Expr("sold_qty - ?", qty),
			}
		},
		guard: "sold_qty >= ?",
	})
}

// CommitOrder commits every active reservation held by orderID.
func (l *Ledger) CommitOrder(ctx context.Context, orderID uuid.UUID) error {
	return l.forOrder(ctx, orderID, func(ledger *Ledger, r models.StockReservation) error {
		if r.Status != enums.ReservationStatusActive {
			return nil
		}
		return ledger.Commit(ctx, r.ID)
	})
}

// ReturnOrder gives back all stock held or sold for orderID: active
// reservations are released and committed ones restocked.
func (l *Ledger) ReturnOrder(ctx context.Context, orderID uuid.UUID) error {
	return l.forOrder(ctx, orderID, func(ledger *Ledger, r models.StockReservation) error {
		switch r.Status {
		case enums.ReservationStatusActive:
			return ledger.Release(ctx, r.ID)
		case enums.ReservationStatusCommitted:
			return ledger.Restock(ctx, r.ID)
		default:
			return nil
		}
	})
}

// ForOrder lists the reservations owned by orderID in ascending product order.
func (l *Ledger) ForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	if err := l.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_id ASC").
		Find(&rows).Error; err != nil {
		return nil, db.MapError(err, "list reservations")
	}
	return rows, nil
}

func (l *Ledger) forOrder(ctx context.Context, orderID uuid.UUID, fn func(*Ledger, models.StockReservation) error) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := l.WithTx(tx)
		rows, err := ledger.ForOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := fn(ledger, r); err != nil {
				return err
			}
		}
		return nil
	})
	return db.MapError(err, "settle order reservations")
}

type transitionRule struct {
	name      string
	from      enums.ReservationStatus
	to        enums.ReservationStatus
	noop      []enums.ReservationStatus
	inventory func(qty int) map[string]any
	guard     string
}

func (t transitionRule) isNoop(status enums.ReservationStatus) bool {
	for _, s := range t.noop {
		if s == status {
			return true
		}
	}
	return false
}

func (l *Ledger) transition(ctx context.Context, reservationID uuid.UUID, rule transitionRule) error {
	moved := 0
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.StockReservation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", reservationID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found").WithDetails(map[string]any{
				"reservation_id": reservationID,
			})
		}
		if err != nil {
			return err
		}
		if rule.isNoop(r.Status) {
			return nil
		}
		if r.Status != rule.from {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("reservation is %s", r.Status)).WithDetails(map[string]any{
				"reservation_id": reservationID,
				"current_status": r.Status,
				"attempted":      rule.to,
			})
		}

		res := tx.Model(&models.StockReservation{}).
			Where("id = ? AND status = ?", r.ID, rule.from).
			Update("status", rule.to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost a race with a concurrent settle of the same reservation
			return nil
		}

		inv := tx.Model(&models.InventoryItem{}).
			Where("product_id = ? AND "+rule.guard, r.ProductID, r.Qty).
			Updates(rule.inventory(r.Qty))
		if inv.Error != nil {
			return inv.Error
		}
		if inv.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "inventory counters out of sync").WithDetails(map[string]any{
				"product_id":     r.ProductID,
				"reservation_id": r.ID,
			})
		}
		moved = r.Qty
		return nil
	})
	if err != nil {
		return db.MapError(err, rule.name+" reservation")
	}
	if moved > 0 {
		l.metrics.ObserveReservation(rule.name, moved)
	}
	return nil
}

func mergeAndSort(requests []Request) []Request {
	byProduct := make(map[uuid.UUID]int, len(requests))
	for _, req := range requests {
		byProduct[req.ProductID] += req.Qty
	}
	out := make([]Request, 0, len(byProduct))
	for productID, qty := range byProduct {
		out = append(out, Request{ProductID: productID, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0
	})
	return out
}

func insufficient(productID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for product %s", productID)).
		WithDetails(InsufficientStockDetail{
			ProductID:    productID,
			RequestedQty: requested,
			AvailableQty: available,
		})
}

func productNotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{
		"product_id": productID,
	})
}
