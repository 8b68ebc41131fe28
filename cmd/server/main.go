package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/rowbind/internal/config"
	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/kinds"
	"github.com/JonMunkholm/rowbind/internal/logging"
	"github.com/JonMunkholm/rowbind/internal/pgsink"
	"github.com/JonMunkholm/rowbind/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"imports", cfg.Database.Enabled(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"stream_threshold", cfg.Stream.Threshold,
	)

	engineCfg, err := cfg.Engine(logger)
	if err != nil {
		slog.Error("failed to build engine configuration", "error", err)
		os.Exit(1)
	}
	engine := core.New(engineCfg)
	kinds.Install(engine)

	slog.Info("kinds registered", "count", len(core.All()), "groups", len(core.Groups()))
	for _, k := range core.All() {
		slog.Debug("kind", "key", k.Info.Key, "group", k.Info.Group, "importable", k.Importable())
	}

	ctx := context.Background()
	var pool pgsink.TxBeginner
	if cfg.Database.Enabled() {
		p, err := connect(ctx, &cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		pool = p
	} else {
		slog.Warn("DATABASE_URL not set, imports are disabled")
	}

	server := web.NewServer(cfg, engine, pool)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	// Start returns as soon as Shutdown begins; wait for uploads to drain.
	<-done
	slog.Info("server stopped")
}

// connect opens and pings a connection pool sized from cfg.
func connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
