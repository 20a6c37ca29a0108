// Command decider runs the Decider agent standalone: it subscribes to
// health_alert events, attempts AI-backed analysis with a rule-based
// fallback, and routes each verdict to remediation_needed or
// false_alarm, until terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/config"
	"github.com/jondmarien/hemostat/internal/llm"
	"github.com/jondmarien/hemostat/internal/metricsx"
	"github.com/jondmarien/hemostat/internal/tracing"
	"github.com/jondmarien/hemostat/pkg/decider"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

func main() {
	if err := run(); err != nil {
		logging.ForAgent("decider").WithField("error", err.Error()).Fatal("decider exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := tracing.NewTracerProvider("decider")
	defer tp.Shutdown(context.Background())

	b, err := bus.NewRedisBus(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer b.Close()

	backend := llm.Select(ctx, cfg.AIModel)

	reg := prometheus.NewRegistry()
	metrics := metricsx.New(reg, "decider")

	d := decider.New(b, backend, metrics, nil, decider.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		HistorySize:         cfg.HistorySize,
		HistoryTTL:          cfg.HistoryTTL,
		AIFallbackEnabled:   cfg.AIFallbackEnabled,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- d.Run(ctx) }()
	go func() { errCh <- metricsx.Serve(ctx, ":"+cfg.MetricsPort, reg) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			stop()
			return err
		}
	}
	return nil
}
