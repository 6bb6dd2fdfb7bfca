// Package eligibility decides whether a vendor can deliver to a user's location.
package eligibility

import (
	"fmt"
	"math"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/geo"
)

type Reason string

const (
	ReasonEligible        Reason = "eligible"
	ReasonOffline         Reason = "offline"
	ReasonNotApproved     Reason = "not_approved"
	ReasonMissingLocation Reason = "missing_location"
	ReasonOutOfRange      Reason = "out_of_range"
)

const (
	msgWithinRange         = "within range"
	msgLocationUnavailable = "location unavailable"
)

// Status is the per-vendor record shown next to a vendor's products.
type Status struct {
	VendorID   string   `json:"vendor_id"`
	IsEligible bool     `json:"is_eligible"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Message    string   `json:"message"`
	Reason     Reason   `json:"reason"`
}

// IsEligible fails closed: a vendor missing coordinates or a delivery range never qualifies.
func IsEligible(v domain.Vendor, user domain.Location) bool {
	return Evaluate(v, user).IsEligible
}

// DistanceMessage is display text only; eligibility decisions go through IsEligible.
func DistanceMessage(v domain.Vendor, user domain.Location) string {
	dist, ok := distance(v, user)
	if !ok || v.DeliveryRangeKm == nil {
		return msgLocationUnavailable
	}
	return rangeMessage(dist, *v.DeliveryRangeKm)
}

func Evaluate(v domain.Vendor, user domain.Location) Status {
	st := Status{VendorID: v.ID}

	dist, located := distance(v, user)
	if located {
		st.DistanceKm = &dist
	}

	switch {
	case !located || v.DeliveryRangeKm == nil || !validRange(*v.DeliveryRangeKm):
		st.Reason = ReasonMissingLocation
		st.Message = msgLocationUnavailable
		return st
	case !v.IsOnline:
		st.Reason = ReasonOffline
	case !v.IsApproved:
		st.Reason = ReasonNotApproved
	case dist > *v.DeliveryRangeKm:
		st.Reason = ReasonOutOfRange
	default:
		st.Reason = ReasonEligible
		st.IsEligible = true
	}
	st.Message = rangeMessage(dist, *v.DeliveryRangeKm)
	return st
}

func distance(v domain.Vendor, user domain.Location) (float64, bool) {
	if !v.HasLocation() || !validCoordinate(*v.Latitude, *v.Longitude) || !validCoordinate(user.Latitude, user.Longitude) {
		return 0, false
	}
	return geo.DistanceKm(user.Latitude, user.Longitude, *v.Latitude, *v.Longitude), true
}

func rangeMessage(dist, rangeKm float64) string {
	if dist <= rangeKm {
		return msgWithinRange
	}
	return fmt.Sprintf("need to be ~%d km closer", int(math.Ceil(dist-rangeKm)))
}

func validCoordinate(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) && math.Abs(lat) <= 90 && math.Abs(lon) <= 180
}

func validRange(km float64) bool {
	return km >= 0 && !math.IsNaN(km) && !math.IsInf(km, 0)
}
