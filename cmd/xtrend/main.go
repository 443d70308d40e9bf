// xtrend streams prices through rolling indicators, derives BUY/SELL signals
// and manages paper or brokered trades against a cash ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"xtrend/internal/application/usecase/pipeline"
	"xtrend/internal/infrastructure/config"
	"xtrend/internal/infrastructure/exchange/replay"
	"xtrend/internal/infrastructure/logger"
	"xtrend/internal/infrastructure/svc"
	"xtrend/internal/interfaces/httpapi"
)

var (
	version    = "0.1.0"
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "xtrend",
		Short:         "Real-time indicator, signal and paper-trading engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.toml", "path to config.toml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override app.log_level")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if err := logger.Setup(cfg.App.LogLevel, cfg.App.PrettyLog); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Stream live prices and trade on signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, err = runPipeline(cfg, cfg.HTTP.Enabled)
			return err
		},
	}
}

func replayCmd() *cobra.Command {
	var (
		file      string
		pace      time.Duration
		tradesOut string
		withHTTP  bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run the pipeline over a recorded CSV of prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Replay.File = file
			cfg.Replay.PaceMs = int(pace / time.Millisecond)
			cfg.Exchange.Binance.Enabled = false
			cfg.Execution.Mode = config.ExecutionPaper
			cfg.Execution.PublishEvents = false
			cfg.App.PrintEverySec = 0

			snap, err := runPipeline(cfg, withHTTP)
			if err != nil {
				return err
			}
			fmt.Println(pipeline.NewFormatter().Snapshot(snap))
			if tradesOut != "" {
				if err := replay.WriteTradesCSV(snap.Trades, tradesOut); err != nil {
					return fmt.Errorf("write trades: %w", err)
				}
				log.Info().Str("file", tradesOut).Int("trades", len(snap.Trades)).Msg("trades written")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV of timestamp,symbol,price[,volume]")
	cmd.Flags().DurationVar(&pace, "pace", 0, "delay between rows")
	cmd.Flags().StringVar(&tradesOut, "trades-out", "", "write every trade to this CSV when done")
	cmd.Flags().BoolVar(&withHTTP, "http", false, "serve the HTTP API while replaying")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print it with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xtrend version %s\n", version)
		},
	}
}

// runPipeline runs until the feeds end or the process is interrupted and
// returns the final snapshot.
func runPipeline(cfg *config.Config, withHTTP bool) (pipeline.Snapshot, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	defer sc.Close()

	service := pipeline.NewService(sc.BuildPipelineDeps())

	var wg sync.WaitGroup
	httpCtx, stopHTTP := context.WithCancel(ctx)
	defer stopHTTP()
	if withHTTP {
		srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewHandler(service, sc.History()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(httpCtx); err != nil {
				log.Error().Err(err).Msg("http api stopped")
			}
		}()
	}

	log.Info().
		Str("config", configPath).
		Strs("symbols", cfg.Symbols.List).
		Strs("feeds", cfg.EnabledFeeds()).
		Str("execution", cfg.Execution.Mode).
		Msg("xtrend started")

	runErr := service.Run(ctx)
	stopHTTP()
	wg.Wait()

	if runErr != nil && ctx.Err() == nil {
		return service.Snapshot(), runErr
	}
	return service.Snapshot(), nil
}
