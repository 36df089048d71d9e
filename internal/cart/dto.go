package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineView is a cart line as shown to the buyer, priced from the live product.
type LineView struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	SellerID    uuid.UUID       `json:"seller_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Stock       int             `json:"available_stock"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// View is the buyer's cart with derived totals.
type View struct {
	Items     []LineView      `json:"items"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
}

// AddItemResult reports the cart size after an add.
type AddItemResult struct {
	CartCount int64 `json:"cart_count"`
}
