package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
)

const (
	EventOrderSubmitted = "ORDER_SUBMITTED"
	EventOrderFilled    = "ORDER_FILLED"
	EventTradePending   = "TRADE_PENDING"
	EventTradeOpened    = "TRADE_OPENED"
	EventTradeClosed    = "TRADE_CLOSED"
	EventTradeCancelled = "TRADE_CANCELLED"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEvent asks the downstream order gateway to execute a PENDING trade.
type OrderEvent struct {
	EventType string          `json:"event_type"`
	TradeID   string          `json:"trade_id"`
	Symbol    string          `json:"symbol"`
	Side      domain.Side     `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// TradeEvent announces a trade lifecycle transition.
type TradeEvent struct {
	EventType string       `json:"event_type"`
	Symbol    string       `json:"symbol"`
	Trade     domain.Trade `json:"trade"`
	Timestamp time.Time    `json:"timestamp"`
}

// Producer handles publishing events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(writer, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic, now: time.Now}
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// OrderExecutor submits PENDING trades as order events. Fills come back
// asynchronously through FillConsumer, so Submit never returns a confirmation.
type OrderExecutor struct {
	producer *Producer
}

func NewOrderExecutor(p *Producer) *OrderExecutor {
	return &OrderExecutor{producer: p}
}

func (e *OrderExecutor) Name() string { return "kafka" }

func (e *OrderExecutor) Submit(ctx context.Context, t domain.Trade) (*domain.FillConfirmation, error) {
	event := OrderEvent{
		EventType: EventOrderSubmitted,
		TradeID:   t.ID,
		Symbol:    t.Symbol,
		Side:      t.Side,
		Quantity:  t.Quantity,
		Price:     t.SignalPx,
		Timestamp: e.producer.now().UTC(),
	}
	if err := e.producer.publish(ctx, t.Symbol, event); err != nil {
		return nil, err
	}
	return nil, nil
}

// TradePublisher broadcasts trade transitions keyed by symbol so that a
// consumer sees each symbol's events in order.
type TradePublisher struct {
	producer *Producer
}

func NewTradePublisher(p *Producer) *TradePublisher {
	return &TradePublisher{producer: p}
}

func (tp *TradePublisher) PublishTrade(ctx context.Context, t domain.Trade) error {
	event := TradeEvent{
		EventType: tradeEventType(t.Status),
		Symbol:    t.Symbol,
		Trade:     t,
		Timestamp: tp.producer.now().UTC(),
	}
	return tp.producer.publish(ctx, t.Symbol, event)
}

func tradeEventType(s domain.Status) string {
	switch s {
	case domain.StatusOpen:
		return EventTradeOpened
	case domain.StatusClosed:
		return EventTradeClosed
	case domain.StatusCancelled:
		return EventTradeCancelled
	default:
		return EventTradePending
	}
}
