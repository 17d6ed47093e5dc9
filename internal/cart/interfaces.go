package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	// LockOrCreate returns the user's cart row locked for the rest of the
	// transaction, creating an empty cart on first use.
	LockOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	// LockByUser locks an existing cart; NOT_FOUND when the user has none.
	LockByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	// FindByUser loads the cart with items and their live products.
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	UpsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int) error
	UpdateItemQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) (bool, error)
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type stockChecker interface {
	Check(ctx context.Context, productID uuid.UUID, qty int) error
}
