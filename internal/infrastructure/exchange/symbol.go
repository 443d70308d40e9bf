package exchange

import (
	"strings"

	"xtrend/internal/domain"
)

// SymbolConverter 符号转换接口
// 各交易所可以实现此接口来提供符号转换功能
type SymbolConverter interface {
	// Symbol2Coin 将交易对转换为币种
	// 例: BTCUSDT -> BTC, BTC/USDT -> BTC
	Symbol2Coin(symbol string) string

	// Coin2Symbol 将币种或展示用交易对转换为交易所交易对
	// 例: BTC -> BTCUSDT, BTC/USDT -> BTCUSDT
	Coin2Symbol(coin string) string

	// SymbolSuffix 返回符号后缀
	// 例: USDT, USDC
	SymbolSuffix() string
}

// CommonSymbolConverter 通用符号转换器
type CommonSymbolConverter struct {
	suffix string
}

// NewCommonSymbolConverter 创建通用符号转换器
func NewCommonSymbolConverter(suffix string) *CommonSymbolConverter {
	return &CommonSymbolConverter{suffix: strings.ToUpper(strings.TrimSpace(suffix))}
}

// SymbolSuffix 返回符号后缀
func (c *CommonSymbolConverter) SymbolSuffix() string {
	return c.suffix
}

// Symbol2Coin 将交易对转换为币种
// 例: BTCUSDT -> BTC, BTC/USDT -> BTC, BTC-USDT -> BTC
func (c *CommonSymbolConverter) Symbol2Coin(symbol string) string {
	sym := compact(symbol)
	if sym == "" {
		return ""
	}
	if c.suffix != "" && sym != c.suffix {
		sym = strings.TrimSuffix(sym, c.suffix)
	}
	return sym
}

// Coin2Symbol 将币种转换为交易对
// 例: BTC -> BTCUSDT, BTCUSDT -> BTCUSDT, btc/usdt -> BTCUSDT
func (c *CommonSymbolConverter) Coin2Symbol(coin string) string {
	coin = compact(coin)
	if coin == "" {
		return ""
	}

	// 如果已经包含后缀，直接返回
	if c.suffix == "" || strings.HasSuffix(coin, c.suffix) {
		return coin
	}
	// 否则添加后缀
	return coin + c.suffix
}

// compact 去掉分隔符并转大写
func compact(s string) string {
	return domain.CanonicalSymbol(s)
}
