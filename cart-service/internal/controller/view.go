package controller

import (
	"context"
	"sort"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/eligibility"
	"github.com/fjod/marketcart/cart-service/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LineView struct {
	ProductID string          `json:"product_id"`
	VendorID  string          `json:"vendor_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	TierLabel string          `json:"tier_label,omitempty"`
	Busy      bool            `json:"busy"`
}

type View struct {
	UserID          string                   `json:"user_id"`
	Lines           []LineView               `json:"lines"`
	Summary         domain.SummaryView       `json:"summary"`
	VendorSubtotals []pricing.VendorSubtotal `json:"vendor_subtotals"`
	Vendors         []eligibility.Status     `json:"vendors,omitempty"`
}

// View renders the committed cart. Vendor delivery statuses are included only when the
// user's location is known.
func (c *Controller) View(ctx context.Context, loc *domain.Location) View {
	lines := c.Lines()
	products := c.products(ctx, lines)
	lookup := pricing.FromMap(products)

	v := View{
		UserID:          c.userID,
		Lines:           make([]LineView, 0, len(lines)),
		Summary:         pricing.Summarize(lines, lookup, c.cfg).Display(),
		VendorSubtotals: pricing.VendorSubtotals(lines, lookup),
	}

	for _, l := range lines {
		lv := LineView{
			ProductID: l.ProductID,
			VendorID:  l.VendorID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPriceSnapshot,
			LineTotal: pricing.LineTotal(l, lookup),
			Busy:      c.Busy(l.ProductID),
		}
		if p, ok := products[l.ProductID]; ok {
			lv.Name = p.Name
			lv.UnitPrice = pricing.EffectivePrice(p, l.Quantity)
			if t, ok := pricing.ActiveTier(p, l.Quantity); ok {
				lv.TierLabel = t.Label
			}
		}
		v.Lines = append(v.Lines, lv)
	}

	if loc != nil && len(v.VendorSubtotals) > 0 {
		v.Vendors = c.vendorStatuses(ctx, v.VendorSubtotals, *loc)
	}
	return v
}

func (c *Controller) vendorStatuses(ctx context.Context, subtotals []pricing.VendorSubtotal, loc domain.Location) []eligibility.Status {
	ids := make([]string, 0, len(subtotals))
	for _, s := range subtotals {
		ids = append(ids, s.VendorID)
	}
	vendors, err := c.catalog.Vendors(ctx, ids)
	if err != nil {
		c.log.Warn("vendor lookup failed", zap.Error(err))
	}

	out := make([]eligibility.Status, 0, len(ids))
	for _, id := range ids {
		v, ok := vendors[id]
		if !ok {
			v = domain.Vendor{ID: id}
		}
		out = append(out, eligibility.Evaluate(v, loc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out
}
