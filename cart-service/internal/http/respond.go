package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/marketcart/cart-service/internal/controller"
	"github.com/fjod/marketcart/cart-service/internal/domain"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	// State and Result are set for quantity changes so the client knows what to show.
	State  string             `json:"state,omitempty"`
	Result *controller.Result `json:"result,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondDomainError maps controller and catalog errors to HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	status, resp := errorResponseFor(err)
	respondJSON(w, status, resp)
}

// respondChangeError is respondDomainError for a failed quantity change. The body carries the
// quantity that stays committed.
func respondChangeError(w http.ResponseWriter, res controller.Result, err error) {
	status, resp := errorResponseFor(err)
	resp.State = res.State.String()
	resp.Result = &res
	respondJSON(w, status, resp)
}

func errorResponseFor(err error) (int, ErrorResponse) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, controller.ErrValidation):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, controller.ErrProductNotFound), errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, controller.ErrSuperseded):
		status, code = http.StatusConflict, "superseded"
	case errors.Is(err, controller.ErrCartCleared):
		status, code = http.StatusGone, "cart_cleared"
	case errors.Is(err, controller.ErrOutOfDeliveryRange):
		status, code = http.StatusUnprocessableEntity, "out_of_delivery_range"
	case errors.Is(err, controller.ErrVendorUnavailable):
		status, code = http.StatusUnprocessableEntity, "vendor_unavailable"
	case errors.Is(err, controller.ErrNetworkFailure):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:     "temporarily unavailable, try again",
			Code:      "network_failure",
			Details:   err.Error(),
			Retryable: true,
		}
	default:
		zap.L().Error("unhandled error", zap.Error(err))
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"}
	}
	return status, ErrorResponse{Error: err.Error(), Code: code}
}

// lookupError keeps not-found catalog errors as they are and marks everything else retryable.
func lookupError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", controller.ErrNetworkFailure, err)
}
