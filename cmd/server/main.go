package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eternalApril/starlight/internal/config"
	"github.com/eternalApril/starlight/internal/logger"
	"github.com/eternalApril/starlight/internal/metrics"
	"github.com/eternalApril/starlight/internal/server"
	"github.com/eternalApril/starlight/internal/storage"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("starlight", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Parse(os.Args[1:]) //nolint:errcheck

	configPath, _ := flags.GetString("config") //nolint:errcheck
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, level := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log, level); err != nil {
		log.Error("starlight stopped with error", zap.Error(err))
		log.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger, level zap.AtomicLevel) error {
	log.Info("Starlight starting",
		zap.String("version", server.Version),
		zap.String("address", cfg.Server.Addr()),
		zap.Uint("shards", cfg.Storage.Shards),
		zap.String("config", cfg.File()),
	)

	if cfg.Watch(func(next *config.Config, err error) {
		if err != nil {
			log.Warn("config reload rejected", zap.Error(err))
			return
		}
		// only the log level is applied at runtime, everything else needs a restart
		level.SetLevel(logger.ParseLevel(next.Log.Level))
		log.Info("config reloaded", zap.String("log_level", next.Log.Level))
	}) {
		log.Info("watching config file", zap.String("file", cfg.File()))
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, log)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	db, err := storage.NewShardedMapStorage(cfg.Storage.Shards)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	engine, err := server.NewEngine(db, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer engine.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg.Server, engine, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serveErr:
		if !errors.Is(err, server.ErrServerClosed) {
			return multierr.Append(fmt.Errorf("serve: %w", err), stopMetrics(metricsServer, cfg))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		srv.Shutdown(shutdownCtx),
		stopMetrics(metricsServer, cfg),
	)
	if err != nil {
		log.Warn("shutdown finished with errors", zap.Duration("timeout", cfg.Server.ShutdownTimeout), zap.Error(err))
	}

	log.Info("Starlight stopped")
	return nil
}

func stopMetrics(s *metrics.Server, cfg *config.Config) error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.Stop(ctx)
}
