// apiprobe exercises the access layer against a live exchange: ping,
// server time, a ticker fetch, and optionally a streamed channel tail.
// Usage: go run ./cmd/apiprobe --config configs/bxgate.local.yaml --symbol BTCUSDT
//
// Credentials come from the config file; use ${VAR} values there to
// pull them from the environment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iskelet/bxgate/internal/binance"
	"github.com/iskelet/bxgate/internal/breaker"
	"github.com/iskelet/bxgate/internal/config"
	"github.com/iskelet/bxgate/internal/metrics"
	"github.com/iskelet/bxgate/internal/stream"
	"github.com/iskelet/bxgate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/bxgate.example.yaml", "path to config file")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to probe")
	tail := flag.Bool("stream", false, "tail the ticker stream after the REST probes")
	verbose := flag.Bool("verbose", false, "print full stream message JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting apiprobe",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	collector := metrics.NewCollector()
	client := binance.New(cfg, logger, collector)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		client.Close(shutdownCtx)
	}()

	if cfg.Metrics.Port > 0 {
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: createMetricsHandler(cfg.Metrics.Path, collector, client),
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// REST probes
	if err := client.Ping(ctx); err != nil {
		logger.Error("ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ping ok")

	serverTime, err := client.ServerTime(ctx)
	if err != nil {
		logger.Error("server time failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server time", "time", serverTime, "skew", time.Since(serverTime))

	ticker, err := client.TickerPrice(ctx, *symbol)
	if err != nil {
		logger.Error("ticker failed", "symbol", *symbol, "error", err)
		os.Exit(1)
	}
	logger.Info("ticker", "symbol", ticker.Symbol, "price", ticker.Price)

	if !*tail {
		printStats(client, logger)
		return
	}

	// Stream tail
	handle, err := client.SubscribeTicker(*symbol, stream.ObserverFunc(
		func(_ context.Context, channel string, data json.RawMessage) error {
			if *verbose {
				fmt.Printf("[%s] %s\n", channel, data)
				return nil
			}
			var msg struct {
				Price string `json:"c"`
				Event string `json:"e"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				return err
			}
			fmt.Printf("[%s] event=%s last=%s\n", channel, msg.Event, msg.Price)
			return nil
		}))
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer client.Unsubscribe(handle)

	go func() {
		statsTicker := time.NewTicker(10 * time.Second)
		defer statsTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				printStats(client, logger)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "channel", handle.Channel())
	<-ctx.Done()

	logger.Info("shutting down...")
	printStats(client, logger)
}

func printStats(client *binance.Client, logger *slog.Logger) {
	breakerStatus := client.BreakerStatus()
	cacheStats := client.CacheStats()
	logger.Info("stats",
		"breaker_state", breakerStatus.State,
		"breaker_failures", breakerStatus.FailureCount,
		"cache_size", cacheStats.Size,
		"cache_hit_ratio", fmt.Sprintf("%.2f", cacheStats.HitRatio()),
		"weight_used", client.WeightUsage(),
		"weight_remaining", client.WeightRemaining(),
	)
}

// createMetricsHandler serves Prometheus exposition plus a JSON health
// snapshot of the breaker, cache and weight budget.
func createMetricsHandler(path string, collector *metrics.Collector, client *binance.Client) http.Handler {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, collector.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		breakerStatus := client.BreakerStatus()
		cacheStats := client.CacheStats()

		health := struct {
			Status          string  `json:"status"`
			BreakerState    string  `json:"breaker_state"`
			BreakerFailures int     `json:"breaker_failures"`
			CacheSize       int     `json:"cache_size"`
			CacheHitRatio   float64 `json:"cache_hit_ratio"`
			WeightUsed      int     `json:"weight_used"`
			WeightRemaining int     `json:"weight_remaining"`
		}{
			Status:          "healthy",
			BreakerState:    breakerStatus.State.String(),
			BreakerFailures: breakerStatus.FailureCount,
			CacheSize:       cacheStats.Size,
			CacheHitRatio:   cacheStats.HitRatio(),
			WeightUsed:      client.WeightUsage(),
			WeightRemaining: client.WeightRemaining(),
		}

		w.Header().Set("Content-Type", "application/json")
		if breakerStatus.State == breaker.StateOpen {
			health.Status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
