package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
)

// Service exposes the per-user cart operations.
type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error)
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) (*View, error)
	View(ctx context.Context, userID uuid.UUID) (*View, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLoader
	stock    stockChecker
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products productLoader, stock stockChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock checker required")
	}
	return &service{repo: repo, tx: tx, products: products, stock: stock}, nil
}

// AddItem puts productID in the cart with quantity qty. When the product is
// already present its quantity is replaced, not incremented.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error) {
	if err := s.precheck(ctx, productID, qty); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		return repo.UpsertItem(ctx, cart.ID, productID, qty)
	})
	if err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

func (s *service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error) {
	if err := s.precheck(ctx, productID, qty); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockByUser(ctx, userID)
		if err != nil {
			return err
		}
		found, err := repo.UpdateItemQuantity(ctx, cart.ID, productID, qty)
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart").
				WithDetails(map[string]any{"product_id": productID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

// RemoveItem drops productID from the cart. Removing a product that is not
// in the cart succeeds without change.
func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*View, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockByUser(ctx, userID)
		if err != nil {
			return err
		}
		return repo.DeleteItem(ctx, cart.ID, productID)
	})
	if err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*View, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.LockByUser(ctx, userID)
		if err != nil {
			return err
		}
		return repo.ClearItems(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.View(ctx, userID)
}

// View returns the cart priced at current catalog prices, creating an empty
// cart on first access.
func (s *service) View(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.repo.FindByUser(ctx, userID)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.repo.WithTx(tx).LockOrCreate(ctx, userID)
			return err
		})
		if err != nil {
			return nil, err
		}
		cart, err = s.repo.FindByUser(ctx, userID)
	}
	if err != nil {
		return nil, db.MapError(err, "load cart")
	}
	return buildView(cart)
}

// precheck validates the quantity and performs the advisory availability
// test. It holds no stock; checkout re-checks authoritatively.
func (s *service) precheck(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": qty})
	}
	if _, err := s.products.FindActiveByID(ctx, productID); err != nil {
		return err
	}
	return s.stock.Check(ctx, productID, qty)
}

func itemsOf(cart *models.Cart) []models.CartItem {
	if cart == nil {
		return nil
	}
	return cart.Items
}
