package composite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtrend/internal/application/port"
	"xtrend/internal/domain"
)

type countingRepo struct {
	calls  int
	err    error
	closed bool
}

func (c *countingRepo) UpsertIndicator(context.Context, domain.IndicatorState) error {
	c.calls++
	return c.err
}
func (c *countingRepo) InsertSignal(context.Context, time.Time, domain.Signal, string) error {
	c.calls++
	return c.err
}
func (c *countingRepo) SaveTrade(context.Context, domain.Trade) error {
	c.calls++
	return c.err
}
func (c *countingRepo) InsertSnapshot(context.Context, int64, string) error {
	c.calls++
	return c.err
}
func (c *countingRepo) Close() error {
	c.closed = true
	return c.err
}

type historyRepo struct {
	countingRepo
}

func (h *historyRepo) RecentSignals(_ context.Context, symbol string, _ int) ([]port.SignalRecord, error) {
	return []port.SignalRecord{{Symbol: symbol, Kind: "BUY"}}, nil
}

func (h *historyRepo) LatestIndicator(_ context.Context, symbol string) (string, error) {
	return `{"symbol":"` + symbol + `"}`, nil
}

func TestRepo_FansOutAndReturnsFirstError(t *testing.T) {
	first := &countingRepo{err: errors.New("first")}
	second := &countingRepo{err: errors.New("second")}
	ok := &countingRepo{}
	r := New(first, nil, second, ok)
	assert.Equal(t, 3, r.Len())

	err := r.SaveTrade(context.Background(), domain.Trade{ID: "t"})
	require.EqualError(t, err, "first")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, ok.calls)

	require.Error(t, r.Close())
	assert.True(t, ok.closed)
}

func TestRepo_RecentSignals(t *testing.T) {
	r := New(&countingRepo{})
	_, err := r.RecentSignals(context.Background(), "BTCUSDT", 5)
	assert.ErrorIs(t, err, ErrNoHistory)

	r = New(&countingRepo{}, &historyRepo{})
	recs, err := r.RecentSignals(context.Background(), "BTCUSDT", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "BTCUSDT", recs[0].Symbol)
}

func TestRepo_LatestIndicator(t *testing.T) {
	r := New(&countingRepo{})
	_, err := r.LatestIndicator(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoHistory)

	r = New(&countingRepo{}, &historyRepo{})
	payload, err := r.LatestIndicator(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, payload)
}
