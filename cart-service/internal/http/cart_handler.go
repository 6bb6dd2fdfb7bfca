package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/controller"
	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Carts hands out per-user cart controllers. *controller.Registry implements it.
type Carts interface {
	For(ctx context.Context, userID string) (*controller.Controller, error)
	ClearCart(ctx context.Context, userID string) error
}

type CartHandler struct {
	carts    Carts
	validate *validator.Validate
	log      *zap.Logger
	timeout  time.Duration
}

func NewCartHandler(carts Carts, log *zap.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		validate: newValidator(),
		log:      log,
		timeout:  timeout,
	}
}

// SetQuantityRequest is the body of PUT /cart/items/{product_id}.
// The location may be omitted only when removing the line.
type SetQuantityRequest struct {
	Quantity  *int     `json:"quantity" validate:"required,gte=0,lte=100000"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

func (r SetQuantityRequest) location() domain.Location {
	if r.Latitude == nil || r.Longitude == nil {
		return domain.Location{}
	}
	return domain.Location{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

type QuantityResponse struct {
	Result  controller.Result  `json:"result"`
	State   string             `json:"state"`
	Summary domain.SummaryView `json:"summary"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(SetQuantityRequest)
		if (req.Latitude == nil) != (req.Longitude == nil) {
			sl.ReportError(req.Longitude, "longitude", "Longitude", "latlon_pair", "")
		}
		if req.Quantity != nil && *req.Quantity > 0 && req.Latitude == nil {
			sl.ReportError(req.Latitude, "latitude", "Latitude", "required_for_add", "")
		}
	}, SetQuantityRequest{})
	return v
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())

	loc, err := parseLocation(r, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ctrl, err := h.carts.For(ctx, userID)
	if err != nil {
		h.log.Error("failed to load cart", zap.String("user_id", userID), zap.Error(err))
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ctrl.View(ctx, loc))
}

// SetQuantity handles PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	productID := chi.URLParam(r, "product_id")

	var req SetQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request",
			Code:    "invalid_request",
			Details: err.Error(),
		})
		return
	}

	h.setQuantity(w, r, userID, productID, *req.Quantity, req.location())
}

// RemoveItem handles DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.setQuantity(w, r, getUserID(r.Context()), chi.URLParam(r, "product_id"), 0, domain.Location{})
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request, userID, productID string, qty int, loc domain.Location) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ctrl, err := h.carts.For(ctx, userID)
	if err != nil {
		h.log.Error("failed to load cart", zap.String("user_id", userID), zap.Error(err))
		respondDomainError(w, err)
		return
	}

	res, err := ctrl.RequestQuantity(ctx, loc, productID, qty)
	if err != nil {
		if errors.Is(err, controller.ErrNetworkFailure) {
			h.log.Warn("quantity change failed",
				zap.String("user_id", userID),
				zap.String("product_id", productID),
				zap.String("state", res.State.String()),
				zap.Error(err),
			)
		}
		respondChangeError(w, res, err)
		return
	}

	respondJSON(w, http.StatusOK, QuantityResponse{
		Result:  res,
		State:   res.State.String(),
		Summary: ctrl.Summary(ctx).Display(),
	})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.ClearCart(ctx, userID); err != nil {
		h.log.Error("failed to clear cart", zap.String("user_id", userID), zap.Error(err))
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseLocation reads lat and lon query parameters. Both or neither must be present.
func parseLocation(r *http.Request, required bool) (*domain.Location, error) {
	latRaw, lonRaw := r.URL.Query().Get("lat"), r.URL.Query().Get("lon")
	if latRaw == "" && lonRaw == "" {
		if required {
			return nil, errors.New("lat and lon are required")
		}
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid lat %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid lon %q", lonRaw)
	}
	return &domain.Location{Latitude: lat, Longitude: lon}, nil
}
