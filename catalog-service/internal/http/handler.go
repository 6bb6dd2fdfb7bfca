// Package http serves catalog reference data as JSON.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/marketcart/catalog-service/internal/domain"
	"github.com/fjod/marketcart/catalog-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type Handler struct {
	repo    repository.RepoInterface
	log     *zap.Logger
	timeout time.Duration
}

func NewHandler(repo repository.RepoInterface, log *zap.Logger, timeout time.Duration) *Handler {
	return &Handler{repo: repo, log: log, timeout: timeout}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout + time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/vendors", h.ListVendors)
		r.Get("/vendors/{id}", h.GetVendor)
	})

	return otelhttp.NewHandler(r, "catalog-service")
}

// ListProducts handles GET /api/v1/products, optionally filtered by ?vendor_id=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.repo.ListProducts(ctx, r.URL.Query().Get("vendor_id"))
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

// GetProduct handles GET /api/v1/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.repo.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// ListVendors handles GET /api/v1/vendors
func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	vendors, err := h.repo.ListVendors(ctx)
	if err != nil {
		h.fail(w, "list vendors", err)
		return
	}
	if vendors == nil {
		vendors = []*domain.Vendor{}
	}
	respondJSON(w, http.StatusOK, vendors)
}

// GetVendor handles GET /api/v1/vendors/{id}
func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	vendor, err := h.repo.GetVendor(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get vendor", err)
		return
	}
	respondJSON(w, http.StatusOK, vendor)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
		return
	}
	h.log.Error(op+" failed", zap.Error(err))
	respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
