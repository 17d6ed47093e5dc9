package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
)

// Repository reads and writes catalog rows. Inventory counters are created
// here once and afterwards only touched by the stock ledger.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the product with its inventory row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Preload("Inventory").First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, db.MapError(err, "load product")
	}
	return &product, nil
}

// FindActiveByID loads a purchasable product; inactive listings are reported as missing.
func (r *Repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, notFound(id)
	}
	return product, nil
}

// FindByIDs loads products keyed by id. Missing ids are absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, db.MapError(err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Create inserts the product and its inventory row.
func (r *Repository) Create(ctx context.Context, product *models.Product, initialStock int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			return err
		}
		inventory := &models.InventoryItem{ProductID: product.ID, AvailableQty: initialStock}
		if err := tx.Create(inventory).Error; err != nil {
			return err
		}
		product.Inventory = inventory
		return nil
	})
}

// UpdatePricing overwrites price, discount and activity. Existing orders keep their snapshots.
func (r *Repository) UpdatePricing(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"title":            product.Title,
			"price_cents":      product.PriceCents,
			"discount_percent": product.DiscountPercent,
			"is_active":        product.IsActive,
		}).Error
}

func notFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{
		"product_id": id,
	})
}
