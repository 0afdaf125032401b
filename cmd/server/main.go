package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wireboard-server/internal/app"
	"github.com/vovakirdan/wireboard-server/internal/config"
	applog "github.com/vovakirdan/wireboard-server/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "wireboard-server",
		Short:         "Real-time chat and whiteboard relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, overrides)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.IntVar(&overrides.HistoryLimit, "history-limit", 0, "messages included in the join snapshot")
	flags.StringVar(&overrides.Store.Driver, "store", "", "persistence driver: sqlite, postgres, redis or memory")
	flags.StringVar(&overrides.Log.Level, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&overrides.Log.Format, "log-format", "", "log format: console or json")

	return cmd
}

func run(ctx context.Context, configPath string, overrides config.Config) error {
	_ = godotenv.Load()

	// Bootstrap logger for config loading; replaced once the level is known.
	logger := applog.New("info", "console")

	cfg, resolvedPath, err := config.Load(logger, configPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid config")
		return err
	}

	logger = applog.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info().
		Str("config", resolvedPath).
		Str("addr", cfg.Addr).
		Str("store", cfg.Store.Driver).
		Bool("uploads", cfg.Upload.Enabled).
		Msg("starting wireboard server")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	start := time.Now()
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Dur("uptime", time.Since(start)).Msg("server stopped")
	return nil
}
