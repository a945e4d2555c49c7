// Command reflexd runs the criticality monitoring daemon: the tick
// broadcaster, the sampling driver, the stream monitor, and the three
// reflex dispatcher tiers, all supervised in one process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/history"
	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
	"github.com/Thunderblok/thunderline-sub016/internal/observer"
	"github.com/Thunderblok/thunderline-sub016/internal/orchestration"
	"github.com/Thunderblok/thunderline-sub016/internal/reflex"
	"github.com/Thunderblok/thunderline-sub016/internal/supervisor"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

// #region main

func main() {
	_ = godotenv.Load()

	logger := newLogger(envOr("LOG_LEVEL", "info"))
	cfg := config.Default()

	dbPath := envOr("REFLEX_DB", "reflex_history.db")
	metricsAddr := envOr("METRICS_ADDR", ":9464")
	orchAddr := os.Getenv("ORCHESTRATOR_ADDR")
	tickInterval := envDuration(logger, "TICK_INTERVAL", time.Second)

	store, err := history.NewStore(dbPath)
	if err != nil {
		logger.Error("open history store failed", "db", dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)
	broker := bus.New(cfg.Runtime.MailboxDepth)

	var backend reflex.Backend = orchestration.NewDisabled()
	if orchAddr != "" {
		client, err := orchestration.NewClient(orchAddr, logger)
		if err != nil {
			logger.Error("orchestrator dial failed", "addr", orchAddr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		backend = client
	}

	mon := monitor.New(cfg, logger, metrics, broker, store)
	obs := observer.New(cfg, logger, metrics, broker, mon, observer.NewComputer(cfg.Thresholds))

	sup := supervisor.New(logger, supervisor.DefaultPolicy())
	sup.Add("monitor", mon.Run)
	sup.Add("observer", obs.Run)
	sup.Add("stabilization", reflex.NewStabilization(cfg, logger, metrics, broker, nil).Run)
	sup.Add("escalation", reflex.NewEscalation(cfg, logger, metrics, broker, backend).Run)
	sup.Add("delegation", reflex.NewDelegation(cfg, logger, metrics, broker, backend).Run)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(ctx) })
	g.Go(func() error { return runTicker(ctx, broker, tickInterval) })
	g.Go(func() error { return serveMetrics(ctx, logger, registry, metricsAddr) })

	if envOr("SELF_MONITOR", "true") == "true" {
		obs.Register("self", newSelfCollector().collect)
	}

	logger.Info("reflexd started",
		"db", dbPath, "metrics", metricsAddr, "tick_interval", tickInterval,
		"orchestrator", orchAddr != "")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reflexd exited", "error", err)
		os.Exit(1)
	}
	logger.Info("reflexd stopped")
}

// #endregion main

// #region ticker

// runTicker publishes the monotonically increasing tick counter that
// drives sampling and tick-counted expiry windows.
func runTicker(ctx context.Context, broker *bus.Bus, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick++
			broker.Publish(bus.TopicTick, tick)
		}
	}
}

// #endregion ticker

// #region metrics

func serveMetrics(ctx context.Context, logger *slog.Logger, registry *prometheus.Registry, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// #endregion metrics

// #region env

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(logger *slog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("invalid duration, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return d
}

// #endregion env
