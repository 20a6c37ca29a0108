// Command notifier runs the Notifier agent standalone: it subscribes to
// remediation_complete and false_alarm, stores each for dashboard
// consumption, and relays deduplicated Slack notifications, until
// terminated.
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
	"github.com/jondmarien/hemostat/internal/metricsx"
	"github.com/jondmarien/hemostat/internal/tracing"
	"github.com/jondmarien/hemostat/pkg/notifier"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

func main() {
	if err := run(); err != nil {
		logging.ForAgent("notifier").WithField("error", err.Error()).Fatal("notifier exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := tracing.NewTracerProvider("notifier")
	defer tp.Shutdown(context.Background())

	b, err := bus.NewRedisBus(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer b.Close()

	n := notifier.New(b, nil, notifier.Config{
		SlackWebhookURL: cfg.SlackWebhookURL,
		AlertEnabled:    cfg.AlertEnabled,
		EventTTL:        cfg.AlertEventTTL,
		MaxEvents:       cfg.AlertMaxEvents,
		DedupeTTL:       cfg.AlertDedupeTTL,
	})

	reg := prometheus.NewRegistry()

	errCh := make(chan error, 2)
	go func() { errCh <- n.Run(ctx) }()
	go func() { errCh <- metricsx.Serve(ctx, ":"+cfg.MetricsPort, reg) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			stop()
			return err
		}
	}
	return nil
}
