package cache

import (
	"context"
	"errors"

	"github.com/fjod/marketcart/cart-service/internal/domain"
)

// CartCache holds committed carts only. Summaries are never cached.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
