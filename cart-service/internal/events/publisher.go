// Package events publishes committed cart line changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/controller"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	Topic             = "cart-events"
	EventLineChanged  = "cart.line_changed"
	EventLineRemoved  = "cart.line_removed"
	defaultBufferSize = 1024
	defaultBatchSize  = 100
)

type LineChanged struct {
	EventID          string          `json:"event_id"`
	Type             string          `json:"type"`
	UserID           string          `json:"user_id"`
	ProductID        string          `json:"product_id"`
	VendorID         string          `json:"vendor_id"`
	Quantity         int             `json:"quantity"`
	PreviousQuantity int             `json:"previous_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// Publisher queues events from the request path and writes them in batches from Run.
type Publisher struct {
	writer     MessageWriter
	queue      chan LineChanged
	batchSize  int
	flushEvery time.Duration
	log        *zap.Logger
}

func NewPublisher(writer MessageWriter, log *zap.Logger) *Publisher {
	return &Publisher{
		writer:     writer,
		queue:      make(chan LineChanged, defaultBufferSize),
		batchSize:  defaultBatchSize,
		flushEvery: time.Second,
		log:        log,
	}
}

// OnSettle is a controller settle hook. Only commits that changed a quantity are published.
// It never blocks.
func (p *Publisher) OnSettle(s controller.Settlement) {
	if s.State != controller.Committed || s.Line.Quantity == s.Previous {
		return
	}
	ev := LineChanged{
		EventID:          uuid.NewString(),
		Type:             EventLineChanged,
		UserID:           s.UserID,
		ProductID:        s.Line.ProductID,
		VendorID:         s.Line.VendorID,
		Quantity:         s.Line.Quantity,
		PreviousQuantity: s.Previous,
		UnitPrice:        s.Line.UnitPriceSnapshot,
		OccurredAt:       s.Line.UpdatedAt,
	}
	if ev.Quantity == 0 {
		ev.Type = EventLineRemoved
	}

	select {
	case p.queue <- ev:
	default:
		p.log.Warn("cart event dropped, queue full",
			zap.String("user_id", ev.UserID), zap.String("product_id", ev.ProductID))
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, p.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := p.writer.WriteMessages(ctx, batch...); err != nil {
			p.log.Error("failed to publish cart events", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-p.queue:
			msg, err := toMessage(ev)
			if err != nil {
				p.log.Error("failed to encode cart event", zap.String("event_id", ev.EventID), zap.Error(err))
				continue
			}
			batch = append(batch, msg)
			if len(batch) >= p.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			p.drain(&batch)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return
		}
	}
}

func (p *Publisher) drain(batch *[]kafka.Message) {
	for {
		select {
		case ev := <-p.queue:
			if msg, err := toMessage(ev); err == nil {
				*batch = append(*batch, msg)
			}
		default:
			return
		}
	}
}

func (p *Publisher) Close() {
	if err := p.writer.Close(); err != nil {
		p.log.Warn("error closing cart events writer", zap.Error(err))
	}
}

// Messages are keyed by user so one user's changes stay ordered within a partition.
func toMessage(ev LineChanged) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}
