package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// Product is stored and served with each price tier as two loose optional columns.
// Consumers decide whether a half-filled tier is usable.
type Product struct {
	ID                    string           `json:"id"`
	VendorID              string           `json:"vendor_id"`
	Name                  string           `json:"name"`
	Description           string           `json:"description,omitempty"`
	BasePrice             decimal.Decimal  `json:"base_price"`
	DiscountedPrice       *decimal.Decimal `json:"discounted_price,omitempty"`
	Stock                 int              `json:"stock"`
	BulkPrice             *decimal.Decimal `json:"bulk_price,omitempty"`
	BulkMinUnits          *int             `json:"bulk_min_units,omitempty"`
	LargeQuantityPrice    *decimal.Decimal `json:"large_quantity_price,omitempty"`
	LargeQuantityMinUnits *int             `json:"large_quantity_min_units,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

type Vendor struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	DeliveryRangeKm *float64 `json:"delivery_range_km,omitempty"`
	IsOnline        bool     `json:"is_online"`
	IsApproved      bool     `json:"is_approved"`
}
