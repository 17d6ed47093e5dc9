package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	product "github.com/retroquest/storefront-backend/internal/products"
	"github.com/retroquest/storefront-backend/internal/stock"
	"github.com/retroquest/storefront-backend/internal/testdb"
	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
)

type fixture struct {
	conn *gorm.DB
	svc  Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(
		NewRepository(conn),
		db.NewFromConn(conn, 5*time.Second),
		product.NewRepository(conn),
		stock.NewLedger(conn, nil),
	)
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestViewCreatesEmptyCart(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	view, err := f.svc.View(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, view.UserID)
	assert.NotEqual(t, uuid.Nil, view.CartID)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.SubtotalCents)

	again, err := f.svc.View(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, view.CartID, again.CartID)
}

func TestAddItemPricesLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p1 := testdb.SeedProduct(t, f.conn, models.Product{Title: "N64", PriceCents: 5000}, 5)
	p2 := testdb.SeedProduct(t, f.conn, models.Product{Title: "Dreamcast", PriceCents: 10000, DiscountPercent: decimal.NewFromInt(10)}, 5)

	_, err := f.svc.AddItem(ctx, userID, p1.ID, 2)
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, userID, p2.ID, 1)
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.Equal(t, p1.ID, view.Items[0].ProductID)
	assert.Equal(t, 10000, view.Items[0].LineTotalCents)
	assert.Equal(t, 9000, view.Items[1].EffectivePriceCents)
	assert.Equal(t, 19000, view.SubtotalCents)
	assert.Equal(t, 3, view.ItemCount)
	assert.True(t, view.Items[0].Purchasable)

	// price change is reflected on the next view
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p1.ID).Update("price_cents", 6000).Error)
	view, err = f.svc.View(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 21000, view.SubtotalCents)
}

func TestAddItemReplacesQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p := testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 100}, 10)

	_, err := f.svc.AddItem(ctx, userID, p.ID, 2)
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, userID, p.ID, 5)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
}

func TestAddItemAdvisoryStockCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p := testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 100}, 1)

	_, err := f.svc.AddItem(ctx, userID, p.ID, 2)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	// no reservation is taken by a successful add
	_, err = f.svc.AddItem(ctx, userID, p.ID, 1)
	require.NoError(t, err)
	inv := testdb.Inventory(t, f.conn, p.ID)
	assert.Equal(t, 1, inv.AvailableQty)
	assert.Zero(t, inv.ReservedQty)
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 100}, 1)

	_, err := f.svc.AddItem(ctx, uuid.New(), p.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, uuid.New(), uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error)
	_, err = f.svc.AddItem(ctx, uuid.New(), p.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p := testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 250}, 4)
	other := testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 250}, 4)

	_, err := f.svc.UpdateQuantity(ctx, userID, p.ID, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "missing cart")

	_, err = f.svc.AddItem(ctx, userID, p.ID, 1)
	require.NoError(t, err)

	view, err := f.svc.UpdateQuantity(ctx, userID, p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 1000, view.SubtotalCents)

	_, err = f.svc.UpdateQuantity(ctx, userID, p.ID, 5)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	_, err = f.svc.UpdateQuantity(ctx, userID, other.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "item not in cart")
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p1 := testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 100}, 3)
	p2 := testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 200}, 3)

	_, err := f.svc.RemoveItem(ctx, userID, p1.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Clear(ctx, userID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.AddItem(ctx, userID, p1.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, userID, p2.ID, 1)
	require.NoError(t, err)

	view, err := f.svc.RemoveItem(ctx, userID, p1.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, p2.ID, view.Items[0].ProductID)

	view, err = f.svc.RemoveItem(ctx, userID, p1.ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	view, err = f.svc.Clear(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.SubtotalCents)
}

func TestConcurrentAddsForOneUserKeepOneCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	products := make([]models.Product, 6)
	for i := range products {
		products[i] = testdb.SeedProduct(t, f.conn, models.Product{PriceCents: 100}, 10)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(products))
	for _, p := range products {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.AddItem(ctx, userID, id, 1)
			errs <- err
		}(p.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var carts int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("user_id = ?", userID).Count(&carts).Error)
	assert.Equal(t, int64(1), carts)

	view, err := f.svc.View(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, view.Items, len(products))
}
