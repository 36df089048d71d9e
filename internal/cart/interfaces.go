package cart

import (
	"context"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartRepository defines the persistence surface required by the cart service
// and by checkout.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	ListByBuyerForUpdate(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CartItem, error)
	FindByBuyerProduct(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartItem, error)
	Upsert(ctx context.Context, buyerID, productID uuid.UUID, qty int) error
	UpdateQuantity(ctx context.Context, id uuid.UUID, qty int) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error)
	CountByBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error)
}
