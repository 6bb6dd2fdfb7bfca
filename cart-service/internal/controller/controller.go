// Package controller owns the committed cart lines of one user and applies quantity changes
// to them one product at a time.
//
// A change goes Idle -> Pending -> Committed or RolledBack. A newer request for the same
// product cancels the older one, waits for it to finish and only then writes, so at most one
// store mutation per product is in flight and writes land in request order. The older
// request's result is discarded and reported as Superseded. A request superseded before it
// wrote still finishes only after its own predecessor, so the wait is transitive.
package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/eligibility"
	"github.com/fjod/marketcart/cart-service/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Pending
	Committed
	RolledBack
	Superseded
	Cleared
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case Superseded:
		return "superseded"
	case Cleared:
		return "cleared"
	default:
		return "idle"
	}
}

// Catalog is the read side of product and vendor reference data.
// Lookups for unknown ids return an error wrapping domain.ErrNotFound.
type Catalog interface {
	Product(ctx context.Context, productID string) (domain.Product, error)
	Vendor(ctx context.Context, vendorID string) (domain.Vendor, error)
	Products(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	Vendors(ctx context.Context, vendorIDs []string) (map[string]domain.Vendor, error)
}

// LineWriter persists one cart line. It must be idempotent for a given (user, product):
// a zero quantity removes the line.
type LineWriter interface {
	SetLine(ctx context.Context, userID string, line domain.CartLine) error
}

type Result struct {
	ProductID     string          `json:"product_id"`
	State         State           `json:"-"`
	Requested     int             `json:"requested"`
	Quantity      int             `json:"quantity"`
	StockExceeded bool            `json:"stock_exceeded"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TierLabel     string          `json:"tier_label,omitempty"`
}

// Settlement is passed to the settle hook once a change is committed or rolled back.
type Settlement struct {
	UserID   string
	Line     domain.CartLine
	State    State
	Previous int
	Err      error
}

type SettleFunc func(Settlement)

type Option func(*Controller)

func WithSettleHook(fn SettleFunc) Option {
	return func(c *Controller) { c.onSettle = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type pendingChange struct {
	token    uint64
	quantity int
	cancel   context.CancelFunc
	done     chan struct{}
	// cleared is set when the cart was cleared while this change was pending.
	cleared bool
}

type Controller struct {
	userID  string
	catalog Catalog
	writer  LineWriter
	cfg     pricing.Config

	log      *zap.Logger
	onSettle SettleFunc
	now      func() time.Time

	mu      sync.Mutex
	lines   []domain.CartLine
	pending map[string]*pendingChange
	seq     uint64
	closed  bool
}

// New returns a controller seeded with the user's already committed lines.
func New(userID string, committed []domain.CartLine, catalog Catalog, writer LineWriter, cfg pricing.Config, opts ...Option) *Controller {
	c := &Controller{
		userID:  userID,
		catalog: catalog,
		writer:  writer,
		cfg:     cfg,
		log:     zap.NewNop(),
		now:     time.Now,
		pending: make(map[string]*pendingChange),
	}
	for _, l := range committed {
		if l.Quantity > 0 {
			c.lines = append(c.lines, l)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("user_id", userID))
	return c
}

func (c *Controller) UserID() string { return c.userID }

// RequestQuantity sets the quantity of productID in the cart. Quantities above stock are
// clamped and flagged, never rejected. A zero quantity removes the line and skips the
// delivery check.
func (c *Controller) RequestQuantity(ctx context.Context, userLocation domain.Location, productID string, newQuantity int) (Result, error) {
	res := Result{ProductID: productID, Requested: newQuantity, State: Idle, Quantity: c.committedQuantity(productID)}
	if productID == "" {
		return res, fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if newQuantity < 0 {
		return res, fmt.Errorf("%w: quantity %d is negative", ErrValidation, newQuantity)
	}

	product, err := c.catalog.Product(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return res, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return res, fmt.Errorf("%w: load product %s: %w", ErrNetworkFailure, productID, err)
	}

	qty := newQuantity
	if qty > product.Stock {
		qty = max(product.Stock, 0)
		res.StockExceeded = true
	}

	if qty > 0 {
		if err := c.checkVendor(ctx, product.VendorID, userLocation); err != nil {
			res.Quantity = c.committedQuantity(productID)
			return res, err
		}
	}

	line := domain.CartLine{
		ProductID:         productID,
		VendorID:          product.VendorID,
		Quantity:          qty,
		UnitPriceSnapshot: pricing.EffectivePrice(product, qty),
		UpdatedAt:         c.now(),
	}
	res.UnitPrice = line.UnitPriceSnapshot
	if t, ok := pricing.ActiveTier(product, qty); ok {
		res.TierLabel = t.Label
	}

	return c.apply(ctx, line, res)
}

func (c *Controller) checkVendor(ctx context.Context, vendorID string, loc domain.Location) error {
	vendor, err := c.catalog.Vendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: vendor %s is not listed", ErrVendorUnavailable, vendorID)
		}
		return fmt.Errorf("%w: load vendor %s: %w", ErrNetworkFailure, vendorID, err)
	}

	st := eligibility.Evaluate(vendor, loc)
	switch st.Reason {
	case eligibility.ReasonEligible:
		return nil
	case eligibility.ReasonOutOfRange:
		return fmt.Errorf("%w: %s", ErrOutOfDeliveryRange, st.Message)
	default:
		return fmt.Errorf("%w: vendor %s is %s", ErrVendorUnavailable, vendorID, st.Reason)
	}
}

func (c *Controller) apply(ctx context.Context, line domain.CartLine, res Result) (Result, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		res.Quantity = c.committedQuantityLocked(line.ProductID)
		c.mu.Unlock()
		res.State = Cleared
		return res, ErrCartCleared
	}
	c.seq++
	mine := &pendingChange{token: c.seq, quantity: line.Quantity, cancel: cancel, done: make(chan struct{})}
	prev := c.pending[line.ProductID]
	c.pending[line.ProductID] = mine
	c.mu.Unlock()
	defer finish(mine, prev)

	if prev != nil {
		prev.cancel()
		select {
		case <-prev.done:
		case <-opCtx.Done():
		}
	}

	var writeErr error
	if opCtx.Err() == nil && c.isCurrent(line.ProductID, mine.token) {
		writeErr = c.writer.SetLine(opCtx, c.userID, line)
	} else {
		writeErr = opCtx.Err()
	}

	c.mu.Lock()
	if mine.cleared {
		res.Quantity = c.committedQuantityLocked(line.ProductID)
		c.mu.Unlock()
		res.State = Cleared
		return res, ErrCartCleared
	}
	if !c.isCurrentLocked(line.ProductID, mine.token) {
		res.Quantity = c.committedQuantityLocked(line.ProductID)
		c.mu.Unlock()
		res.State = Superseded
		c.log.Debug("quantity change superseded",
			zap.String("product_id", line.ProductID), zap.Int("quantity", line.Quantity))
		return res, ErrSuperseded
	}
	delete(c.pending, line.ProductID)

	previous := c.committedQuantityLocked(line.ProductID)
	if writeErr != nil {
		res.State = RolledBack
		res.Quantity = previous
		c.mu.Unlock()

		err := fmt.Errorf("%w: save line %s: %w", ErrNetworkFailure, line.ProductID, writeErr)
		c.log.Warn("quantity change rolled back",
			zap.String("product_id", line.ProductID),
			zap.Int("requested", line.Quantity),
			zap.Int("kept", previous),
			zap.Error(writeErr))
		c.settle(Settlement{UserID: c.userID, Line: line, State: RolledBack, Previous: previous, Err: err})
		return res, err
	}

	c.commitLocked(line)
	res.State = Committed
	res.Quantity = line.Quantity
	c.mu.Unlock()

	c.settle(Settlement{UserID: c.userID, Line: line, State: Committed, Previous: previous})
	return res, nil
}

// finish closes mine.done once prev has finished too. A change that gave up waiting on
// prev may leave prev's store write running, and the next change must wait for it.
func finish(mine, prev *pendingChange) {
	if prev == nil {
		close(mine.done)
		return
	}
	select {
	case <-prev.done:
		close(mine.done)
	default:
		go func() {
			<-prev.done
			close(mine.done)
		}()
	}
}

func (c *Controller) commitLocked(line domain.CartLine) {
	i := slices.IndexFunc(c.lines, func(l domain.CartLine) bool { return l.ProductID == line.ProductID })
	switch {
	case line.Quantity == 0 && i >= 0:
		c.lines = slices.Delete(c.lines, i, i+1)
	case line.Quantity == 0:
	case i >= 0:
		c.lines[i] = line
	default:
		c.lines = append(c.lines, line)
	}
}

func (c *Controller) settle(s Settlement) {
	if c.onSettle != nil {
		c.onSettle(s)
	}
}

func (c *Controller) isCurrent(productID string, token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCurrentLocked(productID, token)
}

func (c *Controller) isCurrentLocked(productID string, token uint64) bool {
	p, ok := c.pending[productID]
	return ok && p.token == token
}

func (c *Controller) committedQuantity(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committedQuantityLocked(productID)
}

func (c *Controller) committedQuantityLocked(productID string) int {
	for _, l := range c.lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// Busy reports whether a change for productID is in flight.
func (c *Controller) Busy(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[productID]
	return ok
}

// HasPending reports whether any change is in flight.
func (c *Controller) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// StateOf is Pending while a change is in flight, Committed when a line exists, else Idle.
func (c *Controller) StateOf(productID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[productID]; ok {
		return Pending
	}
	if c.committedQuantityLocked(productID) > 0 {
		return Committed
	}
	return Idle
}

// PendingQuantity returns the quantity of the in-flight change for productID, if any.
func (c *Controller) PendingQuantity(productID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[productID]
	if !ok {
		return 0, false
	}
	return p.quantity, true
}

// Lines returns a copy of the committed lines. Pending changes are never included.
func (c *Controller) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

// Summary prices the committed lines against current catalog data. When the catalog is
// unreachable the line snapshots are used.
func (c *Controller) Summary(ctx context.Context) domain.CartSummary {
	lines := c.Lines()
	products := c.products(ctx, lines)
	return pricing.Summarize(lines, pricing.FromMap(products), c.cfg)
}

func (c *Controller) products(ctx context.Context, lines []domain.CartLine) map[string]domain.Product {
	if len(lines) == 0 {
		return nil
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := c.catalog.Products(ctx, ids)
	if err != nil {
		c.log.Warn("catalog unavailable, pricing from snapshots", zap.Error(err))
		return nil
	}
	return products
}

// drain stops accepting changes, cancels the in-flight ones and waits until none of their
// store writes is still running. Cancelled requests report Cleared.
func (c *Controller) drain(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	waits := make([]chan struct{}, 0, len(c.pending))
	for id, p := range c.pending {
		p.cleared = true
		p.cancel()
		waits = append(waits, p.done)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// reopen undoes drain after a failed clear. Committed lines are untouched.
func (c *Controller) reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
}

// reset drops all committed lines.
func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}
