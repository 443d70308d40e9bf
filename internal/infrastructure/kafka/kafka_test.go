package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtrend/internal/domain"
)

type mockWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

type mockReader struct {
	cfg  kafka.ReaderConfig
	msgs chan kafka.Message

	mu         sync.Mutex
	closeCalls int
}

func newMockReader(topic string, buffer int) *mockReader {
	return &mockReader{
		cfg:  kafka.ReaderConfig{Topic: topic, GroupID: "xtrend"},
		msgs: make(chan kafka.Message, buffer),
	}
}

func (r *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.msgs:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *mockReader) Close() error {
	r.mu.Lock()
	r.closeCalls++
	r.mu.Unlock()
	return nil
}

func (r *mockReader) Config() kafka.ReaderConfig { return r.cfg }

func pendingTrade() domain.Trade {
	return domain.Trade{
		ID:        "t-1",
		Symbol:    "BTCUSDT",
		Side:      domain.SideBuy,
		Quantity:  decimal.RequireFromString("0.0045"),
		SignalPx:  decimal.RequireFromString("44200"),
		Strength:  72,
		Status:    domain.StatusPending,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOrderExecutor_SubmitPublishesOrderKeyedBySymbol(t *testing.T) {
	w := &mockWriter{}
	p := newProducer(w, "orders")
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC) }
	exec := NewOrderExecutor(p)

	fc, err := exec.Submit(context.Background(), pendingTrade())
	require.NoError(t, err)
	assert.Nil(t, fc)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "BTCUSDT", string(w.msgs[0].Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, EventOrderSubmitted, got["event_type"])
	assert.Equal(t, "t-1", got["trade_id"])
	assert.Equal(t, "BUY", got["side"])
	assert.Equal(t, "0.0045", got["quantity"])
	assert.Equal(t, "44200", got["price"])
	assert.Equal(t, "2024-03-01T12:00:01Z", got["timestamp"])
}

func TestOrderExecutor_SubmitPropagatesWriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("broker down")}
	exec := NewOrderExecutor(newProducer(w, "orders"))

	_, err := exec.Submit(context.Background(), pendingTrade())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), "orders")
}

func TestTradePublisher_EventTypeFollowsStatus(t *testing.T) {
	w := &mockWriter{}
	pub := NewTradePublisher(newProducer(w, "events"))

	tr := pendingTrade()
	require.NoError(t, pub.PublishTrade(context.Background(), tr))
	tr.Status = domain.StatusOpen
	require.NoError(t, pub.PublishTrade(context.Background(), tr))
	tr.Status = domain.StatusClosed
	require.NoError(t, pub.PublishTrade(context.Background(), tr))
	tr.Status = domain.StatusCancelled
	require.NoError(t, pub.PublishTrade(context.Background(), tr))

	require.Len(t, w.msgs, 4)
	want := []string{EventTradePending, EventTradeOpened, EventTradeClosed, EventTradeCancelled}
	for i, m := range w.msgs {
		var ev struct {
			EventType string `json:"event_type"`
			Trade     struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"trade"`
		}
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, want[i], ev.EventType)
		assert.Equal(t, "t-1", ev.Trade.ID)
	}
}

func TestProducer_Close(t *testing.T) {
	w := &mockWriter{}
	p := newProducer(w, "orders")
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.Equal(t, "orders", p.Topic())
}

func TestDecodeFill(t *testing.T) {
	sent := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)

	tests := []struct {
		name    string
		payload string
		ok      bool
		wantErr bool
	}{
		{"filled", `{"event_type":"ORDER_FILLED","trade_id":"t-1","fill_price":"44210.5","filled_at":"2024-03-01T12:00:02Z"}`, true, false},
		{"numeric price", `{"event_type":"ORDER_FILLED","trade_id":"t-1","fill_price":44210.5}`, true, false},
		{"other event", `{"event_type":"ORDER_REJECTED","trade_id":"t-1"}`, false, false},
		{"missing id", `{"event_type":"ORDER_FILLED","fill_price":"1"}`, false, true},
		{"zero price", `{"event_type":"ORDER_FILLED","trade_id":"t-1","fill_price":"0"}`, false, true},
		{"garbage", `{not json`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, ok, err := decodeFill(kafka.Message{Value: []byte(tt.payload), Time: sent})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, "t-1", fc.TradeID)
				assert.True(t, fc.FillPrice.Equal(decimal.RequireFromString("44210.5")))
				assert.False(t, fc.FilledAt.IsZero())
			}
		})
	}
}

func TestDecodeFill_DefaultsToMessageTime(t *testing.T) {
	sent := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
	fc, ok, err := decodeFill(kafka.Message{
		Value: []byte(`{"event_type":"ORDER_FILLED","trade_id":"t-9","fill_price":"2"}`),
		Time:  sent,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sent, fc.FilledAt)
}

func TestFillConsumer_EmitsFillsAndSkipsBadMessages(t *testing.T) {
	reader := newMockReader("fills", 4)
	c := &FillConsumer{reader: reader, buffer: 4}
	assert.Equal(t, "kafka:fills", c.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := c.Fills(ctx)
	require.NoError(t, err)

	reader.msgs <- kafka.Message{Value: []byte(`garbage`)}
	reader.msgs <- kafka.Message{Value: []byte(`{"event_type":"ORDER_ACK","trade_id":"t-1"}`)}
	reader.msgs <- kafka.Message{Value: []byte(`{"event_type":"ORDER_FILLED","trade_id":"t-1","fill_price":"100","filled_at":"2024-03-01T12:00:00Z"}`)}

	select {
	case fc := <-out:
		assert.Equal(t, "t-1", fc.TradeID)
		assert.True(t, fc.FillPrice.Equal(decimal.NewFromInt(100)))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fill")
	}

	cancel()
	select {
	case _, open := <-out:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("fill channel not closed after cancel")
	}

	reader.mu.Lock()
	assert.Equal(t, 1, reader.closeCalls)
	reader.mu.Unlock()
}
