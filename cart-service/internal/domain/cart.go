package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartLine struct {
	ProductID         string          `json:"product_id"`
	VendorID          string          `json:"vendor_id"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unit_price_snapshot"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Unbounded marks a tier with no upper quantity limit.
const Unbounded = math.MaxInt

type PriceTier struct {
	MinQty    int             `json:"min_qty"`
	MaxQty    int             `json:"max_qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Label     string          `json:"label"`
	IsActive  bool            `json:"is_active"`
}

// priceTierJSON is the wire form of PriceTier: an unbounded tier has a null max_qty.
type priceTierJSON struct {
	MinQty    int             `json:"min_qty"`
	MaxQty    *int            `json:"max_qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Label     string          `json:"label"`
	IsActive  bool            `json:"is_active"`
}

func (t PriceTier) MarshalJSON() ([]byte, error) {
	out := priceTierJSON{MinQty: t.MinQty, UnitPrice: t.UnitPrice, Label: t.Label, IsActive: t.IsActive}
	if !t.IsUnbounded() {
		maxQty := t.MaxQty
		out.MaxQty = &maxQty
	}
	return json.Marshal(out)
}

func (t *PriceTier) UnmarshalJSON(data []byte) error {
	var in priceTierJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = PriceTier{MinQty: in.MinQty, MaxQty: Unbounded, UnitPrice: in.UnitPrice, Label: in.Label, IsActive: in.IsActive}
	if in.MaxQty != nil {
		t.MaxQty = *in.MaxQty
	}
	return nil
}

func (t PriceTier) Contains(quantity int) bool {
	return t.MinQty <= quantity && quantity <= t.MaxQty
}

func (t PriceTier) IsUnbounded() bool {
	return t.MaxQty == Unbounded
}

// CartSummary holds unrounded totals. Round only through Display.
type CartSummary struct {
	Subtotal       decimal.Decimal
	DeliveryCharge decimal.Decimal
	PlatformFee    decimal.Decimal
	GSTAmount      decimal.Decimal
	GrandTotal     decimal.Decimal
	ItemCount      int
}

type SummaryView struct {
	Subtotal       string `json:"subtotal"`
	DeliveryCharge string `json:"delivery_charge"`
	PlatformFee    string `json:"platform_fee"`
	GSTAmount      string `json:"gst_amount"`
	GrandTotal     string `json:"grand_total"`
	ItemCount      int    `json:"item_count"`
}

func (s CartSummary) Display() SummaryView {
	return SummaryView{
		Subtotal:       s.Subtotal.StringFixed(2),
		DeliveryCharge: s.DeliveryCharge.StringFixed(2),
		PlatformFee:    s.PlatformFee.StringFixed(2),
		GSTAmount:      s.GSTAmount.StringFixed(2),
		GrandTotal:     s.GrandTotal.StringFixed(2),
		ItemCount:      s.ItemCount,
	}
}
