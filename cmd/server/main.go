// Command server wires the fallback engine, circuit breakers, backoff
// controller, mock processors, stats sink, metrics, and HTTP API into
// one running process: environment-driven construction, structured
// startup logging, and signal-based graceful shutdown.
//
// Environment variables are documented in internal/config.
package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbitpay/switchboard/internal/api"
	"github.com/orbitpay/switchboard/internal/backoff"
	"github.com/orbitpay/switchboard/internal/breaker"
	"github.com/orbitpay/switchboard/internal/config"
	"github.com/orbitpay/switchboard/internal/engine"
	"github.com/orbitpay/switchboard/internal/logging"
	"github.com/orbitpay/switchboard/internal/metricsexport"
	"github.com/orbitpay/switchboard/internal/outcome"
	"github.com/orbitpay/switchboard/internal/processor"
	"github.com/orbitpay/switchboard/internal/stats"
)

// defaultProcessors returns the three mock downstream processors used
// for local runs and demos: VortexPay (cheapest), SwiftPay, and PixFlow
// (priciest).
func defaultProcessors() []processor.Processor {
	return []processor.Processor{
		processor.NewMock("VortexPay", 0.025, []processor.WeightedOutcome{
			{Outcome: outcome.Outcome{Kind: outcome.Success}, Weight: 85},
			{Outcome: outcome.Outcome{Kind: outcome.SoftDecline, Reason: "insufficient_funds"}, Weight: 10},
			{Outcome: outcome.Outcome{Kind: outcome.HardDecline, Reason: "fraud_detected"}, Weight: 5},
		}, time.Now().UnixNano()),
		processor.NewMock("SwiftPay", 0.029, []processor.WeightedOutcome{
			{Outcome: outcome.Outcome{Kind: outcome.Success}, Weight: 90},
			{Outcome: outcome.Outcome{Kind: outcome.SoftDecline, Reason: "generic_decline"}, Weight: 10},
		}, time.Now().UnixNano()+1),
		processor.NewMock("PixFlow", 0.032, []processor.WeightedOutcome{
			{Outcome: outcome.Outcome{Kind: outcome.Success}, Weight: 92},
			{Outcome: outcome.Outcome{Kind: outcome.SoftDecline, Reason: "generic_decline"}, Weight: 8},
		}, time.Now().UnixNano()+2),
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, "switchboard")

	processors := defaultProcessors()
	names := make([]string, 0, len(processors))
	for _, p := range processors {
		names = append(names, p.Name())
	}

	breakerCfg := breaker.Config{
		WindowSize:    cfg.RollingWindowSize,
		WindowAge:     cfg.RollingWindowSeconds,
		TripThreshold: cfg.TripThreshold,
		Cooldown:      cfg.CooldownSeconds,
		MinSamples:    cfg.MinSamples,
	}
	registry := breaker.NewRegistry(names, breakerCfg, logger)

	backoffController := backoff.New(backoff.Config{
		Base:       cfg.BackoffBase,
		Cap:        cfg.BackoffMax,
		MaxRetries: cfg.BackoffRetries,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	sink, err := buildStatsSink(cfg, names, logger)
	if err != nil {
		log.Fatalf("failed to initialize stats sink: %v", err)
	}

	eng := engine.New(processors, registry, backoffController, sink, cfg.ProcessorTimeout, engine.WithLogger(logger))

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		collector := metricsexport.New(registry, sink)
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	server := api.New(eng, registry, sink, logger, api.WithMetrics(cfg.MetricsEnabled, metricsHandler))

	addr := formatAddr(cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	logger.Info("switchboard starting", map[string]interface{}{
		"port":            cfg.HTTPPort,
		"processors":      names,
		"stats_backend":   cfg.StatsSinkBackend,
		"metrics_enabled": cfg.MetricsEnabled,
	})

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

func buildStatsSink(cfg *config.Config, names []string, logger logging.Logger) (stats.Sink, error) {
	if cfg.StatsSinkBackend == "redis" {
		return stats.NewRedisSink(context.Background(), cfg.RedisURL, logger)
	}
	return stats.NewMemorySink(names), nil
}

func formatAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
