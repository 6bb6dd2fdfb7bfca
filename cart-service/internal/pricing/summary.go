package pricing

import (
	"sort"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Config is the one set of cart charges applied everywhere a summary is built.
type Config struct {
	DeliveryCharge        decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	PlatformFeeRate       decimal.Decimal
	GSTRate               decimal.Decimal
}

// ProductLookup resolves a product id to catalog data.
type ProductLookup func(productID string) (domain.Product, bool)

// FromMap adapts a product map to a ProductLookup.
func FromMap(products map[string]domain.Product) ProductLookup {
	return func(id string) (domain.Product, bool) {
		p, ok := products[id]
		return p, ok
	}
}

// LineTotal is the effective price of the line times its quantity. A line whose product is
// unknown to the catalog is priced at its snapshot.
func LineTotal(line domain.CartLine, products ProductLookup) decimal.Decimal {
	if line.Quantity <= 0 {
		return decimal.Zero
	}
	unit := line.UnitPriceSnapshot
	if p, ok := products(line.ProductID); ok {
		unit = EffectivePrice(p, line.Quantity)
	}
	return unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// Summarize computes the cart totals from the given lines. Nothing is rounded here.
func Summarize(lines []domain.CartLine, products ProductLookup, cfg Config) domain.CartSummary {
	subtotal := decimal.Zero
	itemCount := 0
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(LineTotal(line, products))
		itemCount += line.Quantity
	}

	delivery := cfg.DeliveryCharge
	if itemCount == 0 || subtotal.GreaterThanOrEqual(cfg.FreeDeliveryThreshold) {
		delivery = decimal.Zero
	}

	platformFee := subtotal.Mul(cfg.PlatformFeeRate)
	gst := subtotal.Add(platformFee).Mul(cfg.GSTRate)

	return domain.CartSummary{
		Subtotal:       subtotal,
		DeliveryCharge: delivery,
		PlatformFee:    platformFee,
		GSTAmount:      gst,
		GrandTotal:     subtotal.Add(delivery).Add(platformFee).Add(gst),
		ItemCount:      itemCount,
	}
}

type VendorSubtotal struct {
	VendorID  string          `json:"vendor_id"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
}

// VendorSubtotals groups line totals by vendor, ordered by vendor id.
func VendorSubtotals(lines []domain.CartLine, products ProductLookup) []VendorSubtotal {
	byVendor := make(map[string]*VendorSubtotal)
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		vs, ok := byVendor[line.VendorID]
		if !ok {
			vs = &VendorSubtotal{VendorID: line.VendorID, Subtotal: decimal.Zero}
			byVendor[line.VendorID] = vs
		}
		vs.Subtotal = vs.Subtotal.Add(LineTotal(line, products))
		vs.ItemCount += line.Quantity
	}

	out := make([]VendorSubtotal, 0, len(byVendor))
	for _, vs := range byVendor {
		out = append(out, *vs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out
}
