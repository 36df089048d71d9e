package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/cart"
	"github.com/angelmondragon/farmlink-backend/internal/notifications"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	product "github.com/angelmondragon/farmlink-backend/internal/products"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
)

type recordedOutcomes struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordedOutcomes) Observe(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordedOutcomes) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

type fixture struct {
	client   *db.Client
	cart     *cart.Repository
	svc      Service
	outcomes *recordedOutcomes
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.New(t)
	conn := client.DB()
	outcomes := &recordedOutcomes{}
	cartRepo := cart.NewRepository(conn)
	svc, err := NewService(Deps{
		Tx:            client,
		Cart:          cartRepo,
		Products:      product.NewRepository(conn),
		Orders:        orders.NewRepository(conn),
		Notifications: notifications.NewRepository(conn),
		Outbox:        outbox.NewWriter(outbox.NewStore(conn), nil),
		Policy:        cart.DefaultShippingPolicy(),
		Metrics:       outcomes,
	})
	require.NoError(t, err)
	return fixture{client: client, cart: cartRepo, svc: svc, outcomes: outcomes}
}

func (f fixture) product(t *testing.T, seller uuid.UUID, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		SellerID:   seller,
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		IsApproved: true,
		IsActive:   true,
	}
	require.NoError(t, f.client.DB().Create(p).Error)
	return p
}

func (f fixture) addToCart(t *testing.T, buyer uuid.UUID, p *models.Product, qty int) {
	t.Helper()
	require.NoError(t, f.cart.Upsert(context.Background(), buyer, p.ID, qty))
}

func (f fixture) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.client.DB().Unscoped().First(&p, "id = ?", id).Error)
	return p.Stock
}

func (f fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
	return n
}

func validInput() Input {
	return Input{
		Address:       "12 Rice Field Rd",
		City:          "Cabanatuan",
		Phone:         "09171234567",
		PaymentMethod: "cod",
		Notes:         "Call on arrival",
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
	return typed
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewService(Deps{})
	require.Error(t, err)
}

func TestCheckoutCreatesOrderAndSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	sellerA, sellerB := uuid.New(), uuid.New()
	rice := f.product(t, sellerA, "Rice 25kg", "30.00", 10)
	eggs := f.product(t, sellerB, "Eggs tray", "8.50", 20)
	f.addToCart(t, buyer, rice, 2)
	f.addToCart(t, buyer, eggs, 4)

	res, err := f.svc.Checkout(ctx, buyer, validInput())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, res.OrderID)
	assert.True(t, decimal.RequireFromString("94.00").Equal(res.Subtotal))
	assert.True(t, decimal.RequireFromString("15.00").Equal(res.ShippingCost))
	assert.True(t, decimal.RequireFromString("109.00").Equal(res.TotalAmount))
	assert.Equal(t, metrics.CheckoutOutcomeSuccess, f.outcomes.last())

	var order models.Order
	require.NoError(t, f.client.DB().Preload("Items").First(&order, "id = ?", res.OrderID).Error)
	assert.Equal(t, buyer, order.BuyerID)
	assert.Equal(t, enums.OrderStatusPending, order.OrderStatus)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, enums.PaymentMethodCOD, order.PaymentMethod)
	assert.True(t, order.Subtotal.Add(order.ShippingCost).Equal(order.TotalAmount))
	require.NotNil(t, order.Notes)
	assert.Equal(t, "Call on arrival", *order.Notes)
	require.Len(t, order.Items, 2)
	for _, item := range order.Items {
		switch item.ProductID {
		case rice.ID:
			assert.Equal(t, 2, item.Quantity)
			assert.Equal(t, sellerA, item.SellerID)
			assert.Equal(t, "Rice 25kg", item.ProductName)
			assert.True(t, decimal.RequireFromString("30.00").Equal(item.Price))
		case eggs.ID:
			assert.Equal(t, 4, item.Quantity)
			assert.Equal(t, sellerB, item.SellerID)
			assert.True(t, decimal.RequireFromString("8.50").Equal(item.Price))
		default:
			t.Fatalf("unexpected item for product %s", item.ProductID)
		}
	}

	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, 8, f.stockOf(t, rice.ID))
	assert.Equal(t, 16, f.stockOf(t, eggs.ID))
	assert.Equal(t, int64(0), f.count(t, &models.CartItem{}))

	var notes []models.Notification
	require.NoError(t, f.client.DB().Find(&notes).Error)
	require.Len(t, notes, 3)
	byUser := map[uuid.UUID]enums.NotificationType{}
	for _, n := range notes {
		byUser[n.UserID] = n.Type
	}
	assert.Equal(t, enums.NotificationTypeNewOrder, byUser[sellerA])
	assert.Equal(t, enums.NotificationTypeNewOrder, byUser[sellerB])
	assert.Equal(t, enums.NotificationTypeOrderPlaced, byUser[buyer])

	var events []models.OutboxEvent
	require.NoError(t, f.client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	assert.Equal(t, res.OrderID, events[0].AggregateID)
}

func TestCheckoutOneNotificationPerDistinctSeller(t *testing.T) {
	f := newFixture(t)
	buyer, seller := uuid.New(), uuid.New()
	f.addToCart(t, buyer, f.product(t, seller, "Okra", "5.00", 10), 1)
	f.addToCart(t, buyer, f.product(t, seller, "Squash", "7.00", 10), 1)

	_, err := f.svc.Checkout(context.Background(), buyer, validInput())
	require.NoError(t, err)

	var sellerNotes int64
	require.NoError(t, f.client.DB().Model(&models.Notification{}).Where("user_id = ?", seller).Count(&sellerNotes).Error)
	assert.Equal(t, int64(1), sellerNotes)
}

func TestCheckoutFreeShippingAboveThreshold(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	f.addToCart(t, buyer, f.product(t, uuid.New(), "Mangoes", "100.01", 5), 1)

	res, err := f.svc.Checkout(context.Background(), buyer, validInput())
	require.NoError(t, err)
	assert.True(t, res.ShippingCost.IsZero())
	assert.True(t, decimal.RequireFromString("100.01").Equal(res.TotalAmount))
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), uuid.New(), validInput())
	requireCode(t, err, pkgerrors.CodeEmptyCart)
	assert.Equal(t, metrics.CheckoutOutcomeEmptyCart, f.outcomes.last())
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
}

func TestCheckoutRejectsInvalidInputBeforeTouchingCart(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	p := f.product(t, uuid.New(), "Garlic", "4.00", 5)
	f.addToCart(t, buyer, p, 1)

	in := validInput()
	in.PaymentMethod = "card"
	_, err := f.svc.Checkout(context.Background(), buyer, in)
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, metrics.CheckoutOutcomeInvalidInput, f.outcomes.last())
	assert.Equal(t, int64(1), f.count(t, &models.CartItem{}))
}

func TestCheckoutInsufficientStockLeavesEverythingUnchanged(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	plenty := f.product(t, uuid.New(), "Onions", "3.00", 50)
	scarce := f.product(t, uuid.New(), "Calamansi", "2.00", 10)
	f.addToCart(t, buyer, plenty, 5)
	f.addToCart(t, buyer, scarce, 5)
	require.NoError(t, f.client.DB().Model(scarce).UpdateColumn("stock", 3).Error)

	_, err := f.svc.Checkout(context.Background(), buyer, validInput())
	typed := requireCode(t, err, pkgerrors.CodeInsufficientStock)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, details["available_stock"])
	assert.Equal(t, 5, details["requested"])
	assert.Equal(t, scarce.ID.String(), details["product_id"])
	assert.Equal(t, metrics.CheckoutOutcomeInsufficientStock, f.outcomes.last())

	assert.Equal(t, 50, f.stockOf(t, plenty.ID))
	assert.Equal(t, 3, f.stockOf(t, scarce.ID))
	assert.Equal(t, int64(2), f.count(t, &models.CartItem{}))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.Notification{}))
	assert.Equal(t, int64(0), f.count(t, &models.OutboxEvent{}))
}

func TestCheckoutProductGone(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	p := f.product(t, uuid.New(), "Ube", "6.00", 10)
	f.addToCart(t, buyer, p, 1)
	require.NoError(t, f.client.DB().Delete(p).Error)

	_, err := f.svc.Checkout(context.Background(), buyer, validInput())
	requireCode(t, err, pkgerrors.CodeProductGone)
	assert.Equal(t, metrics.CheckoutOutcomeProductGone, f.outcomes.last())
	assert.Equal(t, int64(1), f.count(t, &models.CartItem{}))
}

func TestCheckoutRejectsDelistedProduct(t *testing.T) {
	cases := map[string]string{
		"deactivated": "is_active",
		"unapproved":  "is_approved",
	}
	for name, column := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			buyer := uuid.New()
			p := f.product(t, uuid.New(), "Calamansi", "3.00", 10)
			f.addToCart(t, buyer, p, 2)
			require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", p.ID).
				UpdateColumn(column, false).Error)

			_, err := f.svc.Checkout(context.Background(), buyer, validInput())
			typed := requireCode(t, err, pkgerrors.CodeUnavailable)
			details, ok := typed.Details().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, p.ID.String(), details["product_id"])
			assert.Equal(t, metrics.CheckoutOutcomeUnavailable, f.outcomes.last())
			assert.Equal(t, 10, f.stockOf(t, p.ID))
			assert.Equal(t, int64(1), f.count(t, &models.CartItem{}))
			assert.Equal(t, int64(0), f.count(t, &models.Order{}))
		})
	}
}

func TestCheckoutRollsBackWhenOrderItemsFail(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	p := f.product(t, uuid.New(), "Coconut", "12.00", 10)
	f.addToCart(t, buyer, p, 2)

	err := f.client.DB().Callback().Create().Before("gorm:create").Register("test:fail_order_items", func(tx *gorm.DB) {
		if tx.Statement.Table == "order_items" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	_, err = f.svc.Checkout(context.Background(), buyer, validInput())
	requireCode(t, err, pkgerrors.CodeTransactionFailed)
	assert.Equal(t, metrics.CheckoutOutcomeFailed, f.outcomes.last())

	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderItem{}))
	assert.Equal(t, int64(1), f.count(t, &models.CartItem{}))
	assert.Equal(t, 10, f.stockOf(t, p.ID))
	assert.Equal(t, int64(0), f.count(t, &models.Notification{}))
	assert.Equal(t, int64(0), f.count(t, &models.OutboxEvent{}))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "Durian", "20.00", 5)
	buyers := []uuid.UUID{uuid.New(), uuid.New()}
	for _, buyer := range buyers {
		f.addToCart(t, buyer, p, 3)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i, buyer := range buyers {
		wg.Add(1)
		go func(i int, buyer uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(context.Background(), buyer, validInput())
		}(i, buyer)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, pkgerrors.CodeInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, f.stockOf(t, p.ID))
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
}
