package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/cart"
	"github.com/angelmondragon/farmlink-backend/internal/notifications"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	product "github.com/angelmondragon/farmlink-backend/internal/products"
	checkoutrules "github.com/angelmondragon/farmlink-backend/pkg/checkout"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLedger interface {
	WithTx(tx *gorm.DB) *product.Repository
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type outcomeRecorder interface {
	Observe(outcome string, elapsed time.Duration)
}

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, buyerID uuid.UUID, input Input) (*Result, error)
}

// Input is the shipping and payment data supplied by the buyer.
type Input = checkoutrules.ShippingInput

// Result identifies the order a successful checkout produced.
type Result struct {
	OrderID      uuid.UUID       `json:"order_id"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// Deps groups the collaborators checkout writes through.
type Deps struct {
	Tx            txRunner
	Cart          cart.CartRepository
	Products      productLedger
	Orders        orders.Repository
	Notifications notifications.Repository
	Outbox        outboxPublisher
	Policy        cart.ShippingPolicy
	Metrics       outcomeRecorder
	Logger        *logger.Logger
}

type service struct {
	tx            txRunner
	cartRepo      cart.CartRepository
	products      productLedger
	ordersRepo    orders.Repository
	notifications notifications.Repository
	outbox        outboxPublisher
	policy        cart.ShippingPolicy
	metrics       outcomeRecorder
	logg          *logger.Logger
}

// NewService builds the checkout service.
func NewService(deps Deps) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Cart == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = (*metrics.CheckoutMetrics)(nil)
	}
	return &service{
		tx:            deps.Tx,
		cartRepo:      deps.Cart,
		products:      deps.Products,
		ordersRepo:    deps.Orders,
		notifications: deps.Notifications,
		outbox:        deps.Outbox,
		policy:        deps.Policy,
		metrics:       recorder,
		logg:          deps.Logger,
	}, nil
}

// Checkout converts the buyer's whole cart into one pending order. Every
// write happens in a single transaction: on any failure the cart, stock,
// notifications and outbox are left exactly as they were.
func (s *service) Checkout(ctx context.Context, buyerID uuid.UUID, input Input) (*Result, error) {
	started := time.Now()
	result, err := s.checkout(ctx, buyerID, input)
	s.metrics.Observe(outcomeFor(err), time.Since(started))
	if err != nil {
		s.logFailure(ctx, buyerID, err)
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, buyerID.String()), result.OrderID.String())
		s.logg.Info(logCtx, "checkout completed")
	}
	return result, nil
}

func (s *service) checkout(ctx context.Context, buyerID uuid.UUID, input Input) (*Result, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	shipping, err := checkoutrules.ValidateShipping(input)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		productRepo := s.products.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)
		notificationsRepo := s.notifications.WithTx(tx)

		lines, err := cartRepo.ListByBuyerForUpdate(ctx, buyerID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}

		locked, err := productRepo.LockForCheckout(ctx, productIDs(lines))
		if err != nil {
			return err
		}
		stock, err := checkStock(lines, locked)
		if err != nil {
			return err
		}

		priced := make([]cart.PricedLine, 0, len(lines))
		for _, line := range lines {
			priced = append(priced, cart.PricedLine{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: stock[line.ProductID].Price,
			})
		}
		totals := cart.Price(priced, s.policy)

		order := &models.Order{
			BuyerID:         buyerID,
			OrderStatus:     enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusPending,
			PaymentMethod:   shipping.PaymentMethod,
			ShippingAddress: shipping.Address,
			ShippingCity:    shipping.City,
			ShippingPhone:   shipping.Phone,
			Subtotal:        totals.Subtotal,
			ShippingCost:    totals.Shipping,
			TotalAmount:     totals.Total,
			Notes:           shipping.Notes,
		}
		if err := ordersRepo.Create(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			prod := stock[line.ProductID]
			items = append(items, models.OrderItem{
				OrderID:     order.ID,
				ProductID:   prod.ID,
				SellerID:    prod.SellerID,
				ProductName: prod.Name,
				Quantity:    line.Quantity,
				Price:       prod.Price,
			})
		}
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return err
		}

		for _, line := range lines {
			if err := productRepo.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				if pkgerrors.IsPGCondition(err, "check_violation") {
					return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, err, "stock changed during checkout")
				}
				return err
			}
		}

		sellers := distinctSellers(items)
		if err := notificationsRepo.CreateMany(ctx, sellerNotifications(order, items, sellers)); err != nil {
			return err
		}

		if _, err := cartRepo.DeleteByBuyer(ctx, buyerID); err != nil {
			return err
		}

		if err := notificationsRepo.Create(ctx, buyerNotification(order)); err != nil {
			return err
		}

		if err := s.emitOrderCreatedEvent(ctx, tx, order, len(items), sellers); err != nil {
			return err
		}

		result = &Result{
			OrderID:      order.ID,
			Subtotal:     order.Subtotal,
			ShippingCost: order.ShippingCost,
			TotalAmount:  order.TotalAmount,
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransactionFailed, err, "checkout failed")
	}
	return result, nil
}

// checkStock verifies every line against its locked product before any write.
func checkStock(lines []models.CartItem, locked []models.Product) (map[uuid.UUID]models.Product, error) {
	byID := make(map[uuid.UUID]models.Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	for _, line := range lines {
		prod, ok := byID[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeProductGone, "a product in your cart is no longer available").
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
		if !prod.Purchasable() {
			return nil, pkgerrors.New(pkgerrors.CodeUnavailable, fmt.Sprintf("%s is not available for purchase", prod.Name)).
				WithDetails(map[string]any{"product_id": prod.ID.String(), "product_name": prod.Name})
		}
		if line.Quantity > prod.Stock {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", prod.Name)).
				WithDetails(map[string]any{
					"product_id":      prod.ID.String(),
					"product_name":    prod.Name,
					"requested":       line.Quantity,
					"available_stock": prod.Stock,
				})
		}
	}
	return byID, nil
}

func productIDs(lines []models.CartItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func distinctSellers(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		out = append(out, item.SellerID)
	}
	return out
}

func (s *service) emitOrderCreatedEvent(ctx context.Context, tx *gorm.DB, order *models.Order, itemCount int, sellers []uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.Actor{UserID: order.BuyerID, Role: string(enums.RoleBuyer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			BuyerID:       order.BuyerID,
			SellerIDs:     append([]uuid.UUID{}, sellers...),
			ItemCount:     itemCount,
			Subtotal:      order.Subtotal,
			ShippingCost:  order.ShippingCost,
			TotalAmount:   order.TotalAmount,
			PaymentMethod: order.PaymentMethod,
		},
		Version: 1,
	}
	return s.outbox.Emit(ctx, tx, event)
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.CheckoutOutcomeSuccess
	}
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized):
		return metrics.CheckoutOutcomeInvalidInput
	case pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart):
		return metrics.CheckoutOutcomeEmptyCart
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		return metrics.CheckoutOutcomeInsufficientStock
	case pkgerrors.IsCode(err, pkgerrors.CodeProductGone):
		return metrics.CheckoutOutcomeProductGone
	case pkgerrors.IsCode(err, pkgerrors.CodeUnavailable):
		return metrics.CheckoutOutcomeUnavailable
	default:
		return metrics.CheckoutOutcomeFailed
	}
}

func (s *service) logFailure(ctx context.Context, buyerID uuid.UUID, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithUserID(ctx, buyerID.String())
	if pkgerrors.IsCode(err, pkgerrors.CodeTransactionFailed) {
		s.logg.Error(logCtx, "checkout transaction rolled back", err)
		return
	}
	if typed := pkgerrors.As(err); typed != nil {
		logCtx = s.logg.WithField(logCtx, "error_code", string(typed.Code()))
	}
	s.logg.Warn(logCtx, "checkout rejected")
}
