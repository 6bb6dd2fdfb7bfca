package domain

import "github.com/shopspring/decimal"

// TieringKind names which optional quantity tiers a product carries.
type TieringKind int

const (
	DefaultOnly TieringKind = iota
	WithBulk
	WithLarge
	WithBulkAndLarge
)

func (k TieringKind) String() string {
	switch k {
	case WithBulk:
		return "with_bulk"
	case WithLarge:
		return "with_large"
	case WithBulkAndLarge:
		return "with_bulk_and_large"
	default:
		return "default_only"
	}
}

// TierSpec is a complete price/threshold pair. A tier either exists as a whole or not at all.
type TierSpec struct {
	Price    decimal.Decimal `json:"price"`
	MinUnits int             `json:"min_units"`
}

type Tiering struct {
	Bulk  *TierSpec `json:"bulk,omitempty"`
	Large *TierSpec `json:"large,omitempty"`
}

func (t Tiering) Kind() TieringKind {
	switch {
	case t.Bulk != nil && t.Large != nil:
		return WithBulkAndLarge
	case t.Bulk != nil:
		return WithBulk
	case t.Large != nil:
		return WithLarge
	default:
		return DefaultOnly
	}
}

// NewTiering builds the tagged tiering from the loose optional fields the catalog sends.
// A half-specified or non-positive pair is reported in malformed and left out.
func NewTiering(bulkPrice *decimal.Decimal, bulkMin *int, largePrice *decimal.Decimal, largeMin *int) (t Tiering, malformed []string) {
	if spec, ok, bad := pairOf(bulkPrice, bulkMin); ok {
		t.Bulk = spec
	} else if bad {
		malformed = append(malformed, "bulk")
	}
	if spec, ok, bad := pairOf(largePrice, largeMin); ok {
		t.Large = spec
	} else if bad {
		malformed = append(malformed, "large_quantity")
	}
	return t, malformed
}

func pairOf(price *decimal.Decimal, minUnits *int) (*TierSpec, bool, bool) {
	if price == nil && minUnits == nil {
		return nil, false, false
	}
	if price == nil || minUnits == nil || *minUnits < 1 || !price.IsPositive() {
		return nil, false, true
	}
	return &TierSpec{Price: *price, MinUnits: *minUnits}, true, false
}

type Product struct {
	ID              string           `json:"id"`
	VendorID        string           `json:"vendor_id"`
	Name            string           `json:"name"`
	BasePrice       decimal.Decimal  `json:"base_price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price,omitempty"`
	Stock           int              `json:"stock"`
	Tiering         Tiering          `json:"tiering"`
}

// ListPrice is the single-unit price: the discounted price when it is a real discount, else the base price.
func (p Product) ListPrice() decimal.Decimal {
	if p.DiscountedPrice != nil && p.DiscountedPrice.IsPositive() && p.DiscountedPrice.LessThan(p.BasePrice) {
		return *p.DiscountedPrice
	}
	return p.BasePrice
}
