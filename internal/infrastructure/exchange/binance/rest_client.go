package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"xtrend/internal/infrastructure/exchange"
)

// KlineClient Binance K线 REST 客户端，用于启动时回填指标
type KlineClient struct {
	baseURL string
	client  *http.Client
}

// Kline 一根K线（只保留指标需要的字段）
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// NewKlineClient 创建 Binance REST 客户端
func NewKlineClient(baseURL string) *KlineClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &KlineClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Klines 获取最近 limit 根K线，按时间升序
func (c *KlineClient) Klines(ctx context.Context, pair, interval string, limit int) ([]Kline, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	endpoint, err := exchange.BuildQueryURL(c.baseURL, "/api/v3/klines", q.Encode())
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance api error: %d %s", resp.StatusCode, string(body))
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}

	out := make([]Kline, 0, len(rows))
	for i, row := range rows {
		k, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("kline row %d: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// parseKlineRow [openTime, open, high, low, close, volume, closeTime, ...]
func parseKlineRow(row []json.RawMessage) (Kline, error) {
	if len(row) < 7 {
		return Kline{}, fmt.Errorf("want at least 7 fields, got %d", len(row))
	}
	var (
		openMs, closeMs int64
		closePx, vol    string
	)
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return Kline{}, err
	}
	if err := json.Unmarshal(row[4], &closePx); err != nil {
		return Kline{}, err
	}
	if err := json.Unmarshal(row[5], &vol); err != nil {
		return Kline{}, err
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return Kline{}, err
	}
	px, err := decimal.NewFromString(closePx)
	if err != nil {
		return Kline{}, err
	}
	v, err := decimal.NewFromString(vol)
	if err != nil {
		return Kline{}, err
	}
	return Kline{
		OpenTime:  time.UnixMilli(openMs).UTC(),
		CloseTime: time.UnixMilli(closeMs).UTC(),
		Close:     px,
		Volume:    v,
	}, nil
}
