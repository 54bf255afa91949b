package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skarab42/pantin/internal/infrastructure/config"
	"github.com/skarab42/pantin/internal/infrastructure/monitoring"
	"github.com/skarab42/pantin/internal/infrastructure/server"
	"github.com/skarab42/pantin/internal/logging"
	"github.com/skarab42/pantin/internal/pool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	bindFlags(cfg)
	flag.Parse()

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("config error: invalid log level %q: %w", cfg.Log.Level, err)
	}
	defer log.Sync()

	metrics := monitoring.NewMetrics()

	fleet := pool.New(pool.Config{
		MaxSize:         cfg.Pool.MaxSize,
		MaxAge:          cfg.Pool.MaxAge,
		MaxRecycleCount: cfg.Pool.MaxRecycleCount,
		BrowserProgram:  cfg.Pool.BrowserProgram,
	}, log.Logger, metrics)

	srv := server.New(cfg, log.Logger, metrics, fleet)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}

// bindFlags registers a flag for every CLI/env pair in spec.md §6, each
// defaulting to the value config.Load already resolved from the
// environment (or its built-in defaults), so a flag left unset on the
// command line never overrides an explicit PANTIN_ environment variable.
func bindFlags(cfg *config.Config) {
	flag.StringVar(&cfg.Server.Host, "server-host", cfg.Server.Host, "HTTP server host")
	flag.IntVar(&cfg.Server.Port, "server-port", cfg.Server.Port, "HTTP server port")
	flag.DurationVar(&cfg.Server.RequestTimeout, "request-timeout", cfg.Server.RequestTimeout, "per-request timeout")
	flag.IntVar(&cfg.Pool.MaxSize, "browser-pool-max-size", cfg.Pool.MaxSize, "maximum number of live browser handles")
	flag.DurationVar(&cfg.Pool.MaxAge, "browser-max-age", cfg.Pool.MaxAge, "maximum idle age of a pooled browser handle")
	flag.IntVar(&cfg.Pool.MaxRecycleCount, "browser-max-recycle-count", cfg.Pool.MaxRecycleCount, "maximum leases before a handle is retired")
	flag.StringVar(&cfg.Pool.BrowserProgram, "browser-program", cfg.Pool.BrowserProgram, "browser executable name or path")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level: info, debug, or trace")
}

func newLogger(level string) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       level,
		Development: level == "debug" || level == "trace",
		OutputPaths: []string{"stdout"},
	})
}
