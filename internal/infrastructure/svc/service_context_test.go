package svc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtrend/internal/application/usecase/pipeline"
	"xtrend/internal/infrastructure/config"
)

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewWithoutFeedsFails(t *testing.T) {
	cfg := loadConfig(t, `
[symbols]
list = ["BTCUSDT"]
`)
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoFeedsEnabled)
}

func TestReplayThroughPipeline(t *testing.T) {
	dir := t.TempDir()
	csvPath, err := filepath.Abs(filepath.Join("..", "..", "..", "testdata", "btc_usdt.csv"))
	require.NoError(t, err)

	cfg := loadConfig(t, `
[app]
print_every_sec = 0
[symbols]
list = ["BTCUSDT"]
closed = true
[replay]
file = "`+filepath.ToSlash(csvPath)+`"
[storage.sqlite]
enabled = true
path = "`+filepath.ToSlash(filepath.Join(dir, "xtrend.db"))+`"
`)

	sc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer sc.Close()

	require.Len(t, sc.GetPriceFeeds(), 1)
	deps := sc.BuildPipelineDeps()
	assert.Equal(t, "paper", deps.Executor.Name())
	assert.Nil(t, deps.Events)

	svc := pipeline.NewService(deps)
	require.NoError(t, svc.Run(context.Background()))

	snap := svc.Snapshot()
	require.Len(t, snap.Symbols, 1)
	assert.Equal(t, "BTCUSDT", snap.Symbols[0].Symbol)
	assert.Equal(t, 240, snap.Symbols[0].Indicators.Samples)
	assert.True(t, snap.Symbols[0].Indicators.MACDReady)

	_, err = sc.History().RecentSignals(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)

	payload, err := sc.History().LatestIndicator(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Contains(t, payload, `"samples":240`)
}
