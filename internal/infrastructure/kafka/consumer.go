package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// FillEvent is published by the order gateway once an order executes.
type FillEvent struct {
	EventType string          `json:"event_type"`
	TradeID   string          `json:"trade_id"`
	FillPrice decimal.Decimal `json:"fill_price"`
	FilledAt  time.Time       `json:"filled_at"`
}

// FillConsumer turns ORDER_FILLED events into fill confirmations.
type FillConsumer struct {
	reader messageReader
	buffer int
}

// NewFillConsumer creates a new Kafka consumer for the fills topic
func NewFillConsumer(brokers []string, topic, groupID string) *FillConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})
	return &FillConsumer{reader: reader, buffer: 64}
}

func (c *FillConsumer) Name() string { return "kafka:" + c.reader.Config().Topic }

// Fills starts consuming in the background. The channel closes when ctx is
// cancelled; the reader is closed with it.
func (c *FillConsumer) Fills(ctx context.Context) (<-chan domain.FillConfirmation, error) {
	out := make(chan domain.FillConfirmation, c.buffer)
	cfg := c.reader.Config()
	log.Info().Str("topic", cfg.Topic).Str("group", cfg.GroupID).Msg("starting fill consumer")

	go func() {
		defer close(out)
		defer func() {
			if err := c.reader.Close(); err != nil {
				log.Warn().Err(err).Msg("close fill reader")
			}
		}()

		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					log.Info().Msg("fill consumer shutting down")
					return
				}
				log.Error().Err(err).Msg("error reading fill message")
				continue
			}

			fc, ok, err := decodeFill(msg)
			if err != nil {
				log.Error().Err(err).Int64("offset", msg.Offset).Msg("error processing fill message")
				continue
			}
			if !ok {
				continue
			}

			select {
			case out <- fc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// decodeFill reports ok=false for event types other than ORDER_FILLED.
func decodeFill(msg kafka.Message) (domain.FillConfirmation, bool, error) {
	var ev FillEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return domain.FillConfirmation{}, false, fmt.Errorf("failed to unmarshal fill event: %w", err)
	}
	if ev.EventType != EventOrderFilled {
		return domain.FillConfirmation{}, false, nil
	}
	if ev.TradeID == "" {
		return domain.FillConfirmation{}, false, errors.New("fill event without trade_id")
	}
	if !ev.FillPrice.IsPositive() {
		return domain.FillConfirmation{}, false, fmt.Errorf("fill event %s: non-positive fill price %s", ev.TradeID, ev.FillPrice)
	}
	if ev.FilledAt.IsZero() {
		ev.FilledAt = msg.Time
	}
	return domain.FillConfirmation{TradeID: ev.TradeID, FillPrice: ev.FillPrice, FilledAt: ev.FilledAt}, true, nil
}
