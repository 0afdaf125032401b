package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireboard-server/internal/config"
	"github.com/vovakirdan/wireboard-server/internal/core"
	"github.com/vovakirdan/wireboard-server/internal/metrics"
	"github.com/vovakirdan/wireboard-server/internal/store"
	"github.com/vovakirdan/wireboard-server/internal/store/memory"
	"github.com/vovakirdan/wireboard-server/internal/store/postgres"
	"github.com/vovakirdan/wireboard-server/internal/store/redisstore"
	"github.com/vovakirdan/wireboard-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wireboard-server/internal/transport/http"
	"github.com/vovakirdan/wireboard-server/internal/upload"
)

const startupTimeout = 10 * time.Second

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	st, err := openStore(initCtx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("persistence gateway initialized")

	var uploads *upload.Service
	if cfg.Upload.Enabled {
		objects, err := upload.NewMinioStorage(initCtx, upload.MinioConfig{
			Endpoint:  cfg.Upload.Endpoint,
			AccessKey: cfg.Upload.AccessKey,
			SecretKey: cfg.Upload.SecretKey,
			Bucket:    cfg.Upload.Bucket,
			Region:    cfg.Upload.Region,
			UseSSL:    cfg.Upload.UseSSL,
		}, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init uploads: %w", err)
		}
		uploads = upload.NewService(objects, upload.Options{
			MaxBytes:    cfg.Upload.MaxBytes,
			URLExpiry:   cfg.Upload.URLExpiry,
			AllowedExts: cfg.Upload.AllowedExts,
		})
		logger.Info().Str("bucket", cfg.Upload.Bucket).Msg("uploads enabled")
	}

	m := metrics.New()
	reg := core.NewRegistry()
	reg.OnChange(func(sessions, rooms int) {
		m.SetSessions(sessions)
		m.SetRooms(rooms)
	})

	server := transporthttp.NewServer(transporthttp.Services{
		Registry:    reg,
		Broadcaster: core.NewBroadcaster(reg, cfg.SendTimeout, cfg.BroadcastConcurrency, m, logger),
		Store:       st,
		Uploads:     uploads,
		Metrics:     m,
	}, cfg, logger)

	// Hijacked WebSocket connections outlive Shutdown; cancel their contexts
	// so every session runs its disconnect path.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	server.RegisterOnShutdown(cancelBase)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        reg,
		store:           st,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		return postgres.New(ctx, cfg.PostgresURL, cfg.PostgresMaxConns)
	case "redis":
		return redisstore.New(ctx, redisstore.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Prefix:      cfg.RedisPrefix,
			MaxMessages: cfg.RedisMaxMessages,
		})
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Int("sessions", a.registry.Len()).Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
