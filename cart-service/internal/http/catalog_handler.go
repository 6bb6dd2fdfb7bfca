package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/controller"
	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/eligibility"
	"github.com/fjod/marketcart/cart-service/internal/pricing"
	"github.com/go-chi/chi/v5"
)

// CatalogHandler serves pricing and delivery lookups that do not touch a cart.
type CatalogHandler struct {
	catalog controller.Catalog
	timeout time.Duration
}

func NewCatalogHandler(catalog controller.Catalog, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, timeout: timeout}
}

type TiersResponse struct {
	ProductID      string             `json:"product_id"`
	Quantity       int                `json:"quantity"`
	EffectivePrice string             `json:"effective_price"`
	Tiers          []domain.PriceTier `json:"tiers"`
}

// ProductTiers handles GET /api/v1/products/{product_id}/tiers
func (h *CatalogHandler) ProductTiers(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	qty := 0
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "quantity must be a non-negative integer")
			return
		}
		qty = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.catalog.Product(ctx, productID)
	if err != nil {
		respondDomainError(w, lookupError(err))
		return
	}

	respondJSON(w, http.StatusOK, TiersResponse{
		ProductID:      product.ID,
		Quantity:       qty,
		EffectivePrice: pricing.EffectivePrice(product, qty).StringFixed(2),
		Tiers:          pricing.TiersFor(product, qty),
	})
}

// VendorEligibility handles GET /api/v1/vendors/{vendor_id}/eligibility
func (h *CatalogHandler) VendorEligibility(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendor_id")

	loc, err := parseLocation(r, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	vendor, err := h.catalog.Vendor(ctx, vendorID)
	if err != nil {
		respondDomainError(w, lookupError(err))
		return
	}

	respondJSON(w, http.StatusOK, eligibility.Evaluate(vendor, *loc))
}
