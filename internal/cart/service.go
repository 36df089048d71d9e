package cart

import (
	"context"
	"errors"
	"fmt"

	product "github.com/angelmondragon/farmlink-backend/internal/products"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ProductLedger yields the transaction-bound stock ledger.
type ProductLedger interface {
	WithTx(tx *gorm.DB) *product.Repository
}

// Service exposes buyer cart operations.
type Service interface {
	AddItem(ctx context.Context, buyerID, productID uuid.UUID, qty int) (*AddItemResult, error)
	UpdateQuantity(ctx context.Context, buyerID, lineID uuid.UUID, qty int) error
	RemoveLine(ctx context.Context, buyerID, lineID uuid.UUID) error
	ClearCart(ctx context.Context, buyerID uuid.UUID) error
	View(ctx context.Context, buyerID uuid.UUID) (*View, error)
	Summarize(ctx context.Context, buyerID uuid.UUID) (Totals, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products ProductLedger
	policy   ShippingPolicy
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products ProductLedger, policy ShippingPolicy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product ledger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		products: products,
		policy:   policy,
	}, nil
}

// AddItem creates the (buyer, product) line or merges qty into it.
func (s *service) AddItem(ctx context.Context, buyerID, productID uuid.UUID, qty int) (*AddItemResult, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var count int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		prod, err := s.products.WithTx(tx).FindForUpdate(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !prod.Purchasable() {
			return pkgerrors.New(pkgerrors.CodeUnavailable, "product is not available").
				WithDetails(map[string]any{"product_id": prod.ID.String()})
		}

		repo := s.repo.WithTx(tx)
		existing := 0
		line, err := repo.FindByBuyerProduct(ctx, buyerID, productID)
		switch {
		case err == nil:
			existing = line.Quantity
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}

		if prod.Stock < existing+qty {
			return insufficientStock(prod)
		}

		if err := repo.Upsert(ctx, buyerID, productID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
		}

		count, err = repo.CountByBuyer(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart lines")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &AddItemResult{CartCount: count}, nil
}

// UpdateQuantity sets the quantity of one of the buyer's lines.
func (s *service) UpdateQuantity(ctx context.Context, buyerID, lineID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line, err := repo.FindByID(ctx, lineID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}
		if line.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cart item belongs to another buyer")
		}

		prod, err := s.products.WithTx(tx).FindForUpdate(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeProductGone, "product no longer exists").
					WithDetails(map[string]any{"product_id": line.ProductID.String()})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if qty > prod.Stock {
			return insufficientStock(prod)
		}

		if err := repo.UpdateQuantity(ctx, lineID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
		}
		return nil
	})
}

// RemoveLine deletes one of the buyer's lines. A line that no longer exists
// is treated as already removed.
func (s *service) RemoveLine(ctx context.Context, buyerID, lineID uuid.UUID) error {
	line, err := s.repo.FindByID(ctx, lineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}
	if line.BuyerID != buyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cart item belongs to another buyer")
	}
	if err := s.repo.Delete(ctx, lineID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
	}
	return nil
}

// ClearCart removes all of the buyer's lines.
func (s *service) ClearCart(ctx context.Context, buyerID uuid.UUID) error {
	if _, err := s.repo.DeleteByBuyer(ctx, buyerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// View returns the buyer's live-priced lines and totals. Lines whose
// product was deleted are left out.
func (s *service) View(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	items, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	live, err := s.products.WithTx(nil).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart products")
	}

	views := make([]LineView, 0, len(items))
	lines := make([]PricedLine, 0, len(items))
	for _, item := range items {
		prod, ok := live[item.ProductID]
		if !ok {
			continue
		}
		line := PricedLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: prod.Price,
		}
		lines = append(lines, line)
		views = append(views, LineView{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: prod.Name,
			SellerID:    prod.SellerID,
			UnitPrice:   prod.Price,
			Quantity:    item.Quantity,
			Stock:       prod.Stock,
			LineTotal:   line.LineTotal(),
		})
	}

	totals := Price(lines, s.policy)
	return &View{
		Items:     views,
		ItemCount: len(views),
		Subtotal:  totals.Subtotal,
		Shipping:  totals.Shipping,
		Total:     totals.Total,
	}, nil
}

// Summarize returns only the derived totals of the buyer's cart.
func (s *service) Summarize(ctx context.Context, buyerID uuid.UUID) (Totals, error) {
	view, err := s.View(ctx, buyerID)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Subtotal: view.Subtotal, Shipping: view.Shipping, Total: view.Total}, nil
}

func insufficientStock(prod *models.Product) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"product_id":      prod.ID.String(),
			"product_name":    prod.Name,
			"available_stock": prod.Stock,
		})
}
