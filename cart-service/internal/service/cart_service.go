package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/cache"
	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartService is the cart store: Mongo for durability, Redis as a read-through cache.
type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	log   *zap.Logger
	sfg   singleflight.Group // one repository read per user on a cache miss
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, log *zap.Logger) *CartService {
	return &CartService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := time.Now()
			return &domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			if err := s.cache.Set(context.Background(), userID, cart); err != nil {
				s.log.Warn("cache set failed", zap.String("user_id", userID), zap.Error(err))
			}
		}()

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// SetLine writes one line; a zero quantity removes it. Removing a line from a cart that does
// not exist succeeds.
func (s *CartService) SetLine(ctx context.Context, userID string, line domain.CartLine) error {
	var err error
	if line.Quantity == 0 {
		err = s.repo.RemoveLine(ctx, userID, line.ProductID)
		if errors.Is(err, repository.ErrCartNotFound) {
			err = nil
		}
	} else {
		err = s.repo.UpsertLine(ctx, userID, line)
	}
	if err != nil {
		s.log.Error("repo set line failed",
			zap.String("user_id", userID),
			zap.String("product_id", line.ProductID),
			zap.Int("quantity", line.Quantity),
			zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.Error("repo delete cart failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
