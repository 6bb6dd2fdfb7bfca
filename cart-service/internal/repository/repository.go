package repository

import (
	"context"

	"github.com/fjod/marketcart/cart-service/internal/domain"
)

// CartRepository is the persistent cart store. Lines are keyed by (user, product) and every
// write is idempotent.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	UpsertLine(ctx context.Context, userID string, line domain.CartLine) error
	RemoveLine(ctx context.Context, userID, productID string) error
	DeleteCart(ctx context.Context, userID string) error
}
