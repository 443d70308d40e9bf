package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"xtrend/internal/application/port"
	"xtrend/internal/application/usecase/pipeline"
	"xtrend/internal/domain/indicator"
	"xtrend/internal/domain/portfolio"
	"xtrend/internal/domain/signal"
	"xtrend/internal/domain/strategy"
	"xtrend/internal/domain/trade"
	"xtrend/internal/infrastructure/config"
	_ "xtrend/internal/infrastructure/exchange/binance"
	_ "xtrend/internal/infrastructure/exchange/replay"
	"xtrend/internal/infrastructure/execution/paper"
	"xtrend/internal/infrastructure/kafka"
	"xtrend/internal/infrastructure/pricefeed"
	"xtrend/internal/infrastructure/storage/composite"
	pgrepo "xtrend/internal/infrastructure/storage/postgres"
	redisrepo "xtrend/internal/infrastructure/storage/redis"
	sqliterepo "xtrend/internal/infrastructure/storage/sqlite"
	"xtrend/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	repos []port.Repository
	repo  *composite.Repo

	// 输出端口
	Sink port.Sink

	// 领域组件
	engine    *indicator.Engine
	generator *signal.Generator
	strategy  *strategy.Store
	book      *trade.Book
	ledger    *portfolio.Ledger

	// 行情与执行
	priceFeeds  []port.PriceFeed
	fillSources []port.FillSource
	executor    port.Executor
	events      port.EventPublisher

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	// 初始化所有组件，按依赖顺序
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 初始化所有应用组件
// 按照依赖关系有序初始化，确保不会有循环依赖
func (sc *ServiceContext) initializeComponents() error {
	// 0. 存储层
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}

	// 1. 领域组件
	if err := sc.initializeDomain(); err != nil {
		return err
	}

	// 2. 价格源
	feeds, err := pricefeed.Build(sc.Config)
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		return ErrNoFeedsEnabled
	}
	sc.priceFeeds = feeds

	// 3. 执行与事件
	if err := sc.initializeExecution(); err != nil {
		return fmt.Errorf("execution initialization failed: %w", err)
	}

	log.Info().
		Int("feeds", len(sc.priceFeeds)).
		Int("repos", sc.repo.Len()).
		Str("executor", sc.executor.Name()).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化存储层 (SQLite / Redis / Postgres)
func (sc *ServiceContext) initializeStorage() error {
	st := sc.Config.Storage

	// SQLite 初始化
	if st.SQLite.Enabled {
		repo, err := sqliterepo.New(st.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite repo creation failed: %w", err)
		}
		sc.addRepo("sqlite", repo)
		log.Info().Str("path", st.SQLite.Path).Msg("✓ SQLite initialized")
	}

	// Redis 初始化
	if st.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}

	// Postgres 初始化
	if st.Postgres.Enabled {
		repo, err := pgrepo.New(st.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		sc.addRepo("postgres", repo)
		log.Info().Msg("✓ Postgres initialized")
	}

	sc.repo = composite.New(sc.repos...)
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	cfg := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	sc.addRepo("redis", redisrepo.New(rdb, cfg.Prefix, ttl, cfg.SignalStream, cfg.SignalChannel))

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("✓ Redis initialized")
	return nil
}

// addRepo 注册仓储及其关闭回调
func (sc *ServiceContext) addRepo(name string, repo port.Repository) {
	sc.repos = append(sc.repos, repo)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Str("repo", name).Msg("closing repository")
		return repo.Close()
	})
}

func (sc *ServiceContext) initializeDomain() error {
	cfg := sc.Config
	store, err := strategy.NewStore(cfg.Strategy)
	if err != nil {
		return err
	}
	sc.strategy = store
	sc.engine = indicator.NewEngine(indicator.Options{
		Periods: cfg.Periods(),
		Symbols: cfg.Symbols.List,
		Closed:  cfg.Symbols.Closed,
	})
	sc.generator = signal.NewGenerator(cfg.Weights())
	sc.book = trade.NewBook()
	sc.ledger = portfolio.NewLedger(cfg.StartingCash())
	return nil
}

func (sc *ServiceContext) initializeExecution() error {
	cfg := sc.Config
	switch cfg.Execution.Mode {
	case config.ExecutionKafka:
		orders := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic)
		sc.closerChain = append(sc.closerChain, orders.Close)
		sc.executor = kafka.NewOrderExecutor(orders)
		sc.fillSources = append(sc.fillSources, kafka.NewFillConsumer(cfg.Kafka.Brokers, cfg.Kafka.FillsTopic, cfg.Kafka.GroupID))
	default:
		sc.executor = paper.NewExecutor(cfg.Execution.SlippageBps)
	}

	if cfg.Execution.PublishEvents {
		events := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		sc.closerChain = append(sc.closerChain, events.Close)
		sc.events = kafka.NewTradePublisher(events)
	}
	return nil
}

// BuildPipelineDeps 构建 Pipeline Service 所需的所有依赖
func (sc *ServiceContext) BuildPipelineDeps() pipeline.ServiceDeps {
	cfg := sc.Config
	deps := pipeline.ServiceDeps{
		Feeds:          sc.priceFeeds,
		FillSources:    sc.fillSources,
		Symbols:        cfg.Symbols.List,
		Engine:         sc.engine,
		Signals:        sc.generator,
		Strategy:       sc.strategy,
		Book:           sc.book,
		Ledger:         sc.ledger,
		Executor:       sc.executor,
		Repo:           sc.repo,
		Events:         sc.events,
		Sink:           sc.Sink,
		QueueSize:      cfg.Pipeline.QueueSize,
		Overflow:       cfg.Overflow(),
		PendingTimeout: cfg.PendingTimeout(),
		PrintEvery:     time.Duration(cfg.App.PrintEverySec) * time.Second,
	}
	return deps
}

// History 返回可回读的信号与指标历史，未启用 SQL 存储时为 nil
func (sc *ServiceContext) History() port.History {
	st := sc.Config.Storage
	if !st.SQLite.Enabled && !st.Postgres.Enabled {
		return nil
	}
	return sc.repo
}

// GetPriceFeeds 获取已初始化的价格源
func (sc *ServiceContext) GetPriceFeeds() []port.PriceFeed {
	return sc.priceFeeds
}

// Close 关闭 ServiceContext 中的所有资源
// 包括存储连接、网络连接等
// 应该在应用退出时调用
func (sc *ServiceContext) Close() error {
	// 按照相反的顺序关闭所有资源
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
