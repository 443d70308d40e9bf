package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommonSymbolConverter(t *testing.T) {
	c := NewCommonSymbolConverter(" usdt ")
	assert.Equal(t, "USDT", c.SymbolSuffix())

	for in, want := range map[string]string{
		"BTC":      "BTCUSDT",
		"btcusdt":  "BTCUSDT",
		"BTC/USDT": "BTCUSDT",
		"eth-usdt": "ETHUSDT",
		"":         "",
	} {
		assert.Equal(t, want, c.Coin2Symbol(in), in)
	}

	assert.Equal(t, "BTC", c.Symbol2Coin("BTCUSDT"))
	assert.Equal(t, "BTC", c.Symbol2Coin("btc/usdt"))
	assert.Equal(t, "USDT", c.Symbol2Coin("USDT"))

	bare := NewCommonSymbolConverter("")
	assert.Equal(t, "BTCUSDT", bare.Coin2Symbol("BTC/USDT"))
}

func TestBackoff(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 350 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.Next())
	assert.Equal(t, 200*time.Millisecond, b.Next())
	assert.Equal(t, 350*time.Millisecond, b.Next())
	assert.Equal(t, 350*time.Millisecond, b.Next())
	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())
}

func TestBuildQueryURL(t *testing.T) {
	u, err := BuildQueryURL("https://api.binance.com/", "/api/v3/klines", "symbol=BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, "https://api.binance.com/api/v3/klines?symbol=BTCUSDT", u)

	_, err = BuildQueryURL(" ", "/x", "")
	assert.Error(t, err)
}
