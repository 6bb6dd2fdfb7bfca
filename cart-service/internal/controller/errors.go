package controller

import "errors"

var (
	ErrValidation         = errors.New("invalid quantity request")
	ErrProductNotFound    = errors.New("product not found")
	ErrVendorUnavailable  = errors.New("vendor unavailable")
	ErrOutOfDeliveryRange = errors.New("vendor does not deliver to this location")
	// ErrNetworkFailure marks a retryable failure talking to the catalog or the cart store.
	ErrNetworkFailure = errors.New("network failure")
	// ErrSuperseded is returned to a request replaced by a newer one for the same product.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrCartCleared is returned to a request that was pending while the cart was cleared.
	ErrCartCleared = errors.New("cart was cleared")
)

// IsRetryable reports whether err is worth retrying unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}
