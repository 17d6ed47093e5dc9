package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateVersioned applies updates only if the row still carries
	// expectedVersion, bumping the version. A lost race yields CONFLICT.
	UpdateVersioned(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderPage, error)
	FindUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// ListFilters narrows order listings.
type ListFilters struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
}

// OrderPage is one page of orders, newest first. Total counts every order
// matching the filters, not just this page.
type OrderPage struct {
	Orders     []models.Order
	NextCursor string
	Total      int64
}
