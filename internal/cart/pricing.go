package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
)

// ShippingPolicy decides the shipping fee from the subtotal. Shipping is free
// only when the subtotal is strictly greater than the threshold.
type ShippingPolicy struct {
	FreeShippingThreshold decimal.Decimal
	FlatFee               decimal.Decimal
}

// DefaultShippingPolicy is 15.00 flat, free above 100.00.
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		FreeShippingThreshold: decimal.RequireFromString("100.00"),
		FlatFee:               decimal.RequireFromString("15.00"),
	}
}

// PolicyFromConfig builds the policy from validated checkout config.
func PolicyFromConfig(cfg config.CheckoutConfig) ShippingPolicy {
	return ShippingPolicy{
		FreeShippingThreshold: cfg.Threshold(),
		FlatFee:               cfg.FlatFee(),
	}
}

// ShippingFor returns the fee for a subtotal.
func (p ShippingPolicy) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}

// PricedLine is one quantity of a product at its current unit price.
type PricedLine struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal is unit price times quantity.
func (l PricedLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals is the derived money summary of a set of lines.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Price derives subtotal, shipping and total. The cart view and checkout both
// call it so the two can never disagree. No lines means nothing to ship.
func Price(lines []PricedLine, policy ShippingPolicy) Totals {
	if len(lines) == 0 {
		return Totals{Subtotal: decimal.Zero, Shipping: decimal.Zero, Total: decimal.Zero}
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	subtotal = subtotal.Round(2)
	shipping := policy.ShippingFor(subtotal)

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal.Add(shipping),
	}
}
