package pricefeed

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"xtrend/internal/application/port"
	"xtrend/internal/infrastructure/config"
)

// Factory 根据配置构建价格源
type Factory func(cfg *config.Config) port.PriceFeed

var (
	mu sync.RWMutex
	// registry maps feed names to their factories
	registry = make(map[string]Factory)
)

// Register 注册一个 price feed factory
// 这是由各个行情包的 init() 函数调用来自注册的
func Register(name string, factory Factory) {
	if factory == nil {
		log.Warn().Str("feed", name).Msg("invalid price feed factory")
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		log.Warn().Str("feed", name).Msg("price feed factory already registered, overwriting")
	}
	registry[name] = factory
}

// Get 获取已注册的 price feed factory
func Get(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[name]
	return factory, ok
}

// Names 返回已注册的行情源名称（排序）
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build 为配置中启用的每个行情源构建实例
func Build(cfg *config.Config) ([]port.PriceFeed, error) {
	var feeds []port.PriceFeed
	for _, name := range cfg.EnabledFeeds() {
		factory, ok := Get(name)
		if !ok {
			return nil, fmt.Errorf("price feed %s enabled but not registered", name)
		}
		feeds = append(feeds, factory(cfg))
		log.Debug().Str("feed", name).Msg("price feed built")
	}
	return feeds, nil
}
