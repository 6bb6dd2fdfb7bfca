// Package poller consumes completed checkouts and empties the buyer's cart.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic   = "checkout-outbox"
	GroupID = "cart-service-consumer"
)

// CartClearer empties a user's cart. controller.Registry implements it.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type checkoutCompleted struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

type Poller struct {
	carts  CartClearer
	reader MessageReader
	log    *zap.Logger
	retry  time.Duration
}

func NewKafkaReader(brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(carts CartClearer, reader MessageReader, log *zap.Logger) *Poller {
	return &Poller{carts: carts, reader: reader, log: log, retry: time.Second}
}

func (p *Poller) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := p.handleNext(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("checkout message not handled", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(p.retry):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

// handleNext commits the offset only once the cart is cleared, so a failed clear is redelivered.
// Unparseable messages are committed and skipped.
func (p *Poller) handleNext(ctx context.Context) error {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}

	var payload checkoutCompleted
	if err := json.Unmarshal(m.Value, &payload); err != nil || payload.UserID == "" {
		p.log.Error("dropping malformed checkout message",
			zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key), zap.Error(err))
		return p.commit(ctx, m)
	}

	if err := p.carts.ClearCart(ctx, payload.UserID); err != nil {
		return fmt.Errorf("clear cart of %s: %w", payload.UserID, err)
	}
	p.log.Info("cart cleared after checkout",
		zap.String("user_id", payload.UserID), zap.String("checkout_id", payload.CheckoutID))

	return p.commit(ctx, m)
}

func (p *Poller) commit(ctx context.Context, m kafka.Message) error {
	if err := p.reader.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}
