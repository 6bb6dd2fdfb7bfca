package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = 15 * time.Minute
	DefaultMaxJitter = 5 * time.Minute
)

type Option func(*RedisCache)

// WithTTL sets the base TTL and the upper bound of the random jitter added to it.
func WithTTL(base, maxJitter time.Duration) Option {
	return func(r *RedisCache) {
		r.baseTTL = base
		r.maxJitter = maxJitter
	}
}

func NewRedisCache(client redis.UniversalClient, opts ...Option) *RedisCache {
	r := &RedisCache{
		client:    client,
		baseTTL:   DefaultTTL,
		maxJitter: DefaultMaxJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type RedisCache struct {
	client    redis.UniversalClient
	baseTTL   time.Duration
	maxJitter time.Duration
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if err := r.client.Set(ctx, cacheKey(userID), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

// ttl spreads expiries so carts cached together do not all miss at once.
func (r *RedisCache) ttl() time.Duration {
	if r.maxJitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + rand.N(r.maxJitter)
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
