package http

import (
	"net/http"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/controller"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Carts   Carts
	Catalog controller.Catalog
	Log     *zap.Logger
	Timeout time.Duration
}

// NewRouter builds the cart-service REST API.
func NewRouter(cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(cfg.Carts, cfg.Log, cfg.Timeout)
	catalogHandler := NewCatalogHandler(cfg.Catalog, cfg.Timeout)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout + time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products/{product_id}/tiers", catalogHandler.ProductTiers)
		r.Get("/vendors/{vendor_id}/eligibility", catalogHandler.VendorEligibility)

		r.Group(func(r chi.Router) {
			r.Use(UserIDMiddleware)
			r.Get("/cart", cartHandler.GetCart)
			r.Delete("/cart", cartHandler.ClearCart)
			r.Put("/cart/items/{product_id}", cartHandler.SetQuantity)
			r.Delete("/cart/items/{product_id}", cartHandler.RemoveItem)
		})
	})

	return otelhttp.NewHandler(r, "cart-service")
}
