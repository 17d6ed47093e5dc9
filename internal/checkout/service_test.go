package checkout

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

	"github.com/retroquest/storefront-backend/internal/cart"
	"github.com/retroquest/storefront-backend/internal/orders"
	product "github.com/retroquest/storefront-backend/internal/products"
	"github.com/retroquest/storefront-backend/internal/stock"
	"github.com/retroquest/storefront-backend/internal/testdb"
	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/outbox"
	"github.com/retroquest/storefront-backend/pkg/types"
)

type fixture struct {
	conn   *gorm.DB
	carts  cart.Service
	svc    Service
	outbox *outbox.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testdb.Open(t)
	tx := db.NewFromConn(conn, 5*time.Second)
	ledger := stock.NewLedger(conn, nil)
	products := product.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)

	carts, err := cart.NewService(cartRepo, tx, products, ledger)
	require.NoError(t, err)
	svc, err := NewService(Params{
		Tx:            tx,
		Carts:         cartRepo,
		Orders:        orders.NewRepository(conn),
		Products:      products,
		Ledger:        ledger,
		Outbox:        outbox.NewService(outboxRepo, nil),
		ShippingCents: 1000,
	})
	require.NoError(t, err)
	return fixture{conn: conn, carts: carts, svc: svc, outbox: outboxRepo}
}

func validInput() Input {
	return Input{
		ShippingAddress: types.Address{
			Street:       "Av. Paulista",
			Number:       "1000",
			Neighborhood: "Bela Vista",
			City:         "São Paulo",
			State:        "SP",
			ZipCode:      "01310-100",
		},
		PaymentMethod: enums.PaymentMethodPix,
	}
}

func (f fixture) seedCatalog(t *testing.T) (models.Product, models.Product) {
	t.Helper()
	p1 := testdb.SeedProduct(t, f.conn, models.Product{Title: "Super Nintendo", PriceCents: 5000, DiscountPercent: decimal.Zero}, 5)
	p2 := testdb.SeedProduct(t, f.conn, models.Product{Title: "PlayStation", PriceCents: 10000, DiscountPercent: decimal.NewFromInt(10)}, 3)
	return p1, p2
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Params{})
	require.Error(t, err)
}

func TestCheckoutSnapshotsCartIntoOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p1, p2 := f.seedCatalog(t)

	_, err := f.carts.AddItem(ctx, userID, p1.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, userID, p2.ID, 1)
	require.NoError(t, err)

	order, err := f.svc.Execute(ctx, userID, validInput())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 19000, order.SubtotalCents)
	assert.Equal(t, 1000, order.ShippingCents)
	assert.Equal(t, 20000, order.TotalCents)
	assert.Equal(t, 1, order.Version)
	require.Len(t, order.Items, 2)

	byProduct := map[uuid.UUID]orders.LineItemDTO{}
	for _, item := range order.Items {
		byProduct[item.ProductID] = item
	}
	assert.Equal(t, 10000, byProduct[p1.ID].TotalCents)
	assert.Equal(t, 9000, byProduct[p2.ID].TotalCents)
	assert.True(t, decimal.NewFromInt(10).Equal(byProduct[p2.ID].DiscountPercent))
	assert.Equal(t, "PlayStation", byProduct[p2.ID].Title)

	inv1 := testdb.Inventory(t, f.conn, p1.ID)
	assert.Equal(t, 3, inv1.AvailableQty)
	assert.Equal(t, 2, inv1.ReservedQty)

	view, err := f.carts.View(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	events, err := f.outbox.ListForAggregate(ctx, enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
}

func TestCheckoutSnapshotSurvivesPriceChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p1, _ := f.seedCatalog(t)

	_, err := f.carts.AddItem(ctx, userID, p1.ID, 1)
	require.NoError(t, err)
	order, err := f.svc.Execute(ctx, userID, validInput())
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p1.ID).Update("price_cents", 9900).Error)

	var stored models.OrderLineItem
	require.NoError(t, f.conn.First(&stored, "order_id = ?", order.ID).Error)
	assert.Equal(t, 5000, stored.UnitPriceCents)
	assert.Equal(t, 5000, stored.TotalCents)
}

func TestCheckoutShortageRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p1, p2 := f.seedCatalog(t)

	_, err := f.carts.AddItem(ctx, userID, p1.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, userID, p2.ID, 1)
	require.NoError(t, err)
	// Another buyer takes the remaining PlayStations after the cart check.
	require.NoError(t, f.conn.Model(&models.InventoryItem{}).Where("product_id = ?", p2.ID).Update("available_qty", 0).Error)

	_, err = f.svc.Execute(ctx, userID, validInput())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	detail, ok := typed.Details().(stock.InsufficientStockDetail)
	require.True(t, ok)
	assert.Equal(t, p2.ID, detail.ProductID)
	assert.Equal(t, 0, detail.AvailableQty)

	inv1 := testdb.Inventory(t, f.conn, p1.ID)
	assert.Equal(t, 5, inv1.AvailableQty)
	assert.Equal(t, 0, inv1.ReservedQty)

	var orderCount, reservationCount, eventCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, f.conn.Model(&models.StockReservation{}).Count(&reservationCount).Error)
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&eventCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, reservationCount)
	assert.Zero(t, eventCount)

	view, err := f.carts.View(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Execute(ctx, uuid.New(), validInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart), "got %v", err)

	userID := uuid.New()
	_, err = f.carts.View(ctx, userID)
	require.NoError(t, err)
	_, err = f.svc.Execute(ctx, userID, validInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart), "got %v", err)
}

func TestCheckoutValidatesPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p1, _ := f.seedCatalog(t)
	_, err := f.carts.AddItem(ctx, userID, p1.ID, 1)
	require.NoError(t, err)

	input := validInput()
	input.ShippingAddress.ZipCode = " "
	_, err = f.svc.Execute(ctx, userID, input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]any{"missing_fields": []string{"zipCode"}}, typed.Details())

	input = validInput()
	input.PaymentMethod = "cash"
	_, err = f.svc.Execute(ctx, userID, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	assert.Equal(t, 5, testdb.Inventory(t, f.conn, p1.ID).AvailableQty)
}

func TestCheckoutInactiveProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	p1, _ := f.seedCatalog(t)
	_, err := f.carts.AddItem(ctx, userID, p1.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p1.ID).Update("is_active", false).Error)

	_, err = f.svc.Execute(ctx, userID, validInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
	assert.Equal(t, 5, testdb.Inventory(t, f.conn, p1.ID).AvailableQty)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	last := testdb.SeedProduct(t, f.conn, models.Product{Title: "Virtual Boy", PriceCents: 30000, DiscountPercent: decimal.Zero}, 1)

	buyers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, buyer := range buyers {
		_, err := f.carts.AddItem(ctx, buyer, last.ID, 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i, buyer := range buyers {
		wg.Add(1)
		go func(i int, buyer uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.Execute(ctx, buyer, validInput())
		}(i, buyer)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	inv := testdb.Inventory(t, f.conn, last.ID)
	assert.Equal(t, 0, inv.AvailableQty)
	assert.Equal(t, 1, inv.ReservedQty)
}
