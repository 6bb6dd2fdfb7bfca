// Package pricing resolves quantity-tiered unit prices and aggregates cart totals.
// Everything here is pure: no I/O, no shared state, safe to call from any goroutine.
package pricing

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
)

// ResolveTiers builds the ordered, non-overlapping tier list of a product.
// None of the returned tiers is marked active; use TiersFor for that.
func ResolveTiers(p domain.Product) []domain.PriceTier {
	bulkMin, largeMin := domain.Unbounded, domain.Unbounded
	if b := p.Tiering.Bulk; b != nil {
		bulkMin = b.MinUnits
	}
	if l := p.Tiering.Large; l != nil {
		largeMin = l.MinUnits
	}

	tiers := make([]domain.PriceTier, 0, 3)

	defaultMax := upperBound(min(bulkMin, largeMin))
	if defaultMax >= 1 {
		tiers = append(tiers, domain.PriceTier{
			MinQty:    1,
			MaxQty:    defaultMax,
			UnitPrice: p.ListPrice(),
			Label:     rangeLabel(1, defaultMax),
		})
	}

	if b := p.Tiering.Bulk; b != nil {
		maxQty := upperBound(largeMin)
		tiers = append(tiers, domain.PriceTier{
			MinQty:    b.MinUnits,
			MaxQty:    maxQty,
			UnitPrice: b.Price,
			Label:     rangeLabel(b.MinUnits, maxQty),
		})
	}

	if l := p.Tiering.Large; l != nil {
		tiers = append(tiers, domain.PriceTier{
			MinQty:    l.MinUnits,
			MaxQty:    domain.Unbounded,
			UnitPrice: l.Price,
			Label:     fmt.Sprintf(">= %d pcs", l.MinUnits),
		})
	}

	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinQty < tiers[j].MinQty })

	// a bulk minimum at or above the large-quantity minimum leaves an empty bulk range
	valid := tiers[:0]
	for _, t := range tiers {
		if t.MinQty <= t.MaxQty {
			valid = append(valid, t)
		}
	}
	return valid
}

// TiersFor returns ResolveTiers(p) with the tier matching quantity marked active.
func TiersFor(p domain.Product, quantity int) []domain.PriceTier {
	tiers := ResolveTiers(p)
	for i := range tiers {
		tiers[i].IsActive = tiers[i].Contains(quantity)
	}
	return tiers
}

// ActiveTier returns the tier containing quantity, if any.
func ActiveTier(p domain.Product, quantity int) (domain.PriceTier, bool) {
	if quantity < 1 {
		return domain.PriceTier{}, false
	}
	for _, t := range ResolveTiers(p) {
		if t.Contains(quantity) {
			t.IsActive = true
			return t, true
		}
	}
	return domain.PriceTier{}, false
}

// EffectivePrice is the unit price charged when buying quantity units.
// Quantities outside every tier fall back to the list price.
func EffectivePrice(p domain.Product, quantity int) decimal.Decimal {
	if t, ok := ActiveTier(p, quantity); ok {
		return t.UnitPrice
	}
	return p.ListPrice()
}

// IntegrityWarnings lists tiers that charge more per unit than the tier below them.
func IntegrityWarnings(p domain.Product) []string {
	tiers := ResolveTiers(p)
	var warnings []string
	for i := 1; i < len(tiers); i++ {
		prev, cur := tiers[i-1], tiers[i]
		if cur.UnitPrice.GreaterThan(prev.UnitPrice) {
			warnings = append(warnings, fmt.Sprintf(
				"product %s: tier %q costs %s per unit, more than tier %q at %s",
				p.ID, cur.Label, cur.UnitPrice, prev.Label, prev.UnitPrice))
		}
	}
	return warnings
}

func upperBound(nextMin int) int {
	if nextMin == domain.Unbounded {
		return domain.Unbounded
	}
	return nextMin - 1
}

func rangeLabel(minQty, maxQty int) string {
	upper := "max"
	if maxQty != domain.Unbounded {
		upper = strconv.Itoa(maxQty)
	}
	return fmt.Sprintf("%d - %s pcs", minQty, upper)
}
