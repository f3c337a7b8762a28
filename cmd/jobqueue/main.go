// Command jobqueue runs a queue worker with an HTTP ops API.
//
// Configuration is read from the environment; see the config package for
// the full list of variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BranchIntl/jobqueue/config"
	"github.com/BranchIntl/jobqueue/core"
	"github.com/BranchIntl/jobqueue/engines"
	"github.com/BranchIntl/jobqueue/fallback"
	"github.com/BranchIntl/jobqueue/statistics"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "jobqueue:", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg))

	if err := run(cfg); err != nil {
		slog.Error("jobqueue exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := newStatistics(cfg)
	if err != nil {
		return err
	}

	queue := newQueue(cfg, stats)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           withCORS(newServer(queue, stats), cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if err := queue.Start(gCtx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	g.Go(func() error {
		<-gCtx.Done()
		return queue.Stop()
	})

	g.Go(func() error {
		slog.Info("Starting ops API", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ops API failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newStatistics(cfg config.Config) (core.Statistics, error) {
	uri, namespace := cfg.StatsURI, cfg.StatsNamespace
	if cfg.StatsType == string(statistics.Redis) {
		if uri == "" {
			uri = cfg.RedisURL
		}
		if namespace == "" {
			namespace = cfg.Namespace
		}
	}

	return statistics.NewStatistics(statistics.Config{
		Type:      statistics.StatsType(cfg.StatsType),
		URI:       uri,
		Namespace: namespace,
	})
}

func queueOptions(cfg config.Config) []core.Option {
	return []core.Option{
		core.WithPollInterval(cfg.PollInterval),
		core.WithShutdownTimeout(cfg.ShutdownTimeout),
		core.WithBackoff(cfg.BackoffBase, cfg.BackoffMax),
		core.WithMaintenance(cfg.MaintenanceEvery, cfg.StalledAfter, cfg.RetentionWindow),
	}
}

func newQueue(cfg config.Config, stats core.Statistics) *core.Queue {
	fallbackOptions := fallback.DefaultOptions()
	fallbackOptions.Size = cfg.FallbackSize
	fallbackOptions.TTL = cfg.FallbackTTL

	if cfg.StoreType == "memory" {
		options := engines.DefaultMemoryOptions()
		options.LockTTL = cfg.LockTTL
		options.WorkerID = cfg.WorkerID
		options.Production = cfg.IsProduction()
		options.Statistics = stats
		options.FallbackOptions = fallbackOptions
		options.QueueOptions = queueOptions(cfg)
		return engines.NewMemoryEngine(options).GetQueue()
	}

	options := engines.DefaultRedisOptions()
	options.RedisURI = cfg.RedisURL
	options.StoreOptions.Namespace = cfg.Namespace
	options.StoreOptions.MaxConnections = cfg.RedisMaxConnections
	options.StoreOptions.ConnectTimeout = cfg.RedisConnectTimeout
	options.StoreOptions.TLSSkipVerify = cfg.RedisTLSSkipVerify
	options.StoreOptions.TLSCertPath = cfg.RedisTLSCertPath
	options.LockTTL = cfg.LockTTL
	options.WorkerID = cfg.WorkerID
	options.Production = cfg.IsProduction()
	options.Statistics = stats
	options.FallbackOptions = fallbackOptions
	options.QueueOptions = queueOptions(cfg)
	return engines.NewRedisEngine(options).GetQueue()
}
