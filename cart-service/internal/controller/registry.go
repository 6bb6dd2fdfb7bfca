package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/pricing"
	"go.uber.org/zap"
)

// CartStore loads and clears persisted carts and writes single lines.
type CartStore interface {
	LineWriter
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type entry struct {
	ctrl     *Controller
	lastUsed time.Time
}

// Registry keeps one Controller per user, hydrated from the cart store on first use.
type Registry struct {
	store   CartStore
	catalog Catalog
	cfg     pricing.Config
	log     *zap.Logger
	opts    []Option
	now     func() time.Time

	mu    sync.Mutex
	users map[string]*entry
}

func NewRegistry(store CartStore, catalog Catalog, cfg pricing.Config, log *zap.Logger, opts ...Option) *Registry {
	return &Registry{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		log:     log,
		opts:    opts,
		now:     time.Now,
		users:   make(map[string]*entry),
	}
}

// For returns the user's controller, loading the cart on first access.
func (r *Registry) For(ctx context.Context, userID string) (*Controller, error) {
	r.mu.Lock()
	if e, ok := r.users[userID]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.ctrl, nil
	}
	r.mu.Unlock()

	cart, err := r.store.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load cart: %w", ErrNetworkFailure, err)
	}

	opts := append([]Option{WithLogger(r.log)}, r.opts...)
	ctrl := New(userID, cart.Lines, r.catalog, r.store, r.cfg, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	// another request may have hydrated the same user meanwhile
	if e, ok := r.users[userID]; ok {
		e.lastUsed = r.now()
		return e.ctrl, nil
	}
	r.users[userID] = &entry{ctrl: ctrl, lastUsed: r.now()}
	return ctrl, nil
}

// ClearCart deletes the persisted cart and forgets the user's controller. Writes already
// in flight finish before the delete, so none of them can bring a line back.
func (r *Registry) ClearCart(ctx context.Context, userID string) error {
	r.mu.Lock()
	e, ok := r.users[userID]
	r.mu.Unlock()

	if ok {
		if err := e.ctrl.drain(ctx); err != nil {
			e.ctrl.reopen()
			return fmt.Errorf("%w: wait for pending changes: %w", ErrNetworkFailure, err)
		}
	}

	if err := r.store.ClearCart(ctx, userID); err != nil {
		if ok {
			e.ctrl.reopen()
		}
		return fmt.Errorf("%w: clear cart: %w", ErrNetworkFailure, err)
	}

	if ok {
		r.mu.Lock()
		if r.users[userID] == e {
			delete(r.users, userID)
		}
		r.mu.Unlock()
		e.ctrl.reset()
	}
	return nil
}

// Sweep drops controllers idle for longer than maxIdle and returns how many were dropped.
// Controllers with changes in flight are kept.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for id, e := range r.users {
		if e.lastUsed.Before(cutoff) && !e.ctrl.HasPending() {
			delete(r.users, id)
			dropped++
		}
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(maxIdle); n > 0 {
				r.log.Debug("dropped idle carts", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
