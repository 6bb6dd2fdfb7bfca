// Package catalog is the HTTP client for catalog-service product and vendor data.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/pricing"
	"github.com/fjod/marketcart/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxBodyBytes = 1 << 20

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Parallelism int
	Breaker     circuitbreaker.Config
}

// productPayload is the catalog wire shape: each tier arrives as two loose optional fields.
type productPayload struct {
	ID                    string           `json:"id"`
	VendorID              string           `json:"vendor_id"`
	Name                  string           `json:"name"`
	BasePrice             decimal.Decimal  `json:"base_price"`
	DiscountedPrice       *decimal.Decimal `json:"discounted_price"`
	Stock                 int              `json:"stock"`
	BulkPrice             *decimal.Decimal `json:"bulk_price"`
	BulkMinUnits          *int             `json:"bulk_min_units"`
	LargeQuantityPrice    *decimal.Decimal `json:"large_quantity_price"`
	LargeQuantityMinUnits *int             `json:"large_quantity_min_units"`
}

type Client struct {
	baseURL     string
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker[[]byte]
	parallelism int
	log         *zap.Logger

	warnedMu sync.Mutex
	warned   map[string]struct{}
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = circuitbreaker.DefaultConfig("catalog")
	}
	// cancellations by the caller are not catalog failures
	cfg.Breaker.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:     circuitbreaker.New[[]byte](cfg.Breaker, log),
		parallelism: cfg.Parallelism,
		log:         log,
		warned:      make(map[string]struct{}),
	}
}

func (c *Client) Product(ctx context.Context, productID string) (domain.Product, error) {
	body, err := c.get(ctx, "/api/v1/products/"+url.PathEscape(productID))
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", productID, err)
	}

	var p productPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return c.toDomain(p), nil
}

func (c *Client) Vendor(ctx context.Context, vendorID string) (domain.Vendor, error) {
	body, err := c.get(ctx, "/api/v1/vendors/"+url.PathEscape(vendorID))
	if err != nil {
		return domain.Vendor{}, fmt.Errorf("vendor %s: %w", vendorID, err)
	}

	var v domain.Vendor
	if err := json.Unmarshal(body, &v); err != nil {
		return domain.Vendor{}, fmt.Errorf("decode vendor %s: %w", vendorID, err)
	}
	return v, nil
}

// Products fetches products concurrently. Unknown ids are left out of the result.
func (c *Client) Products(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	return fetchAll(ctx, c.parallelism, productIDs, c.Product)
}

// Vendors fetches vendors concurrently. Unknown ids are left out of the result.
func (c *Client) Vendors(ctx context.Context, vendorIDs []string) (map[string]domain.Vendor, error) {
	return fetchAll(ctx, c.parallelism, vendorIDs, c.Vendor)
}

func fetchAll[T any](ctx context.Context, limit int, ids []string, fetch func(context.Context, string) (T, error)) (map[string]T, error) {
	out := make(map[string]T, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g.Go(func() error {
			v, err := fetch(gctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrNotFound
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	})
}

// toDomain drops malformed tiers instead of failing the lookup.
func (c *Client) toDomain(p productPayload) domain.Product {
	tiering, malformed := domain.NewTiering(p.BulkPrice, p.BulkMinUnits, p.LargeQuantityPrice, p.LargeQuantityMinUnits)
	product := domain.Product{
		ID:              p.ID,
		VendorID:        p.VendorID,
		Name:            p.Name,
		BasePrice:       p.BasePrice,
		DiscountedPrice: p.DiscountedPrice,
		Stock:           max(p.Stock, 0),
		Tiering:         tiering,
	}

	if len(malformed) > 0 && c.firstWarning(p.ID) {
		c.log.Warn("malformed tier data ignored",
			zap.String("product_id", p.ID), zap.Strings("tiers", malformed))
	}
	if warnings := pricing.IntegrityWarnings(product); len(warnings) > 0 && c.firstWarning(p.ID+"/integrity") {
		c.log.Warn("tier prices are not monotonic",
			zap.String("product_id", p.ID), zap.Strings("warnings", warnings))
	}
	return product
}

// firstWarning limits data warnings to one per product for the client's lifetime.
func (c *Client) firstWarning(key string) bool {
	c.warnedMu.Lock()
	defer c.warnedMu.Unlock()
	if _, ok := c.warned[key]; ok {
		return false
	}
	c.warned[key] = struct{}{}
	return true
}
