package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its line items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_id ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"order_id": id})
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateVersioned(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently").
			WithDetails(map[string]any{"order_id": id, "expected_version": expectedVersion})
	}
	return nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Scopes(filters.scope).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	query := r.db.WithContext(ctx).Model(&models.Order{}).Scopes(filters.scope)
	switch {
	case params.Numbered():
		query = query.Offset(params.Offset())
	case cursor != nil:
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_id ASC")
		}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	page := &OrderPage{Orders: rows, Total: total}
	if len(rows) > limit {
		page.Orders = rows[:limit]
		if !params.Numbered() {
			last := rows[limit-1]
			page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		}
	}
	return page, nil
}

func (f ListFilters) scope(db *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

// FindUnpaidBefore returns pending orders created before cutoff whose
// payment never completed, oldest first.
func (r *repository) FindUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_status <> ? AND created_at < ?",
			enums.OrderStatusPending, enums.PaymentStatusPaid, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
