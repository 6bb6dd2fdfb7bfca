package domain

type Vendor struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	DeliveryRangeKm *float64 `json:"delivery_range_km,omitempty"`
	IsOnline        bool     `json:"is_online"`
	IsApproved      bool     `json:"is_approved"`
}

// HasLocation reports whether both coordinates are set.
func (v Vendor) HasLocation() bool {
	return v.Latitude != nil && v.Longitude != nil
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
