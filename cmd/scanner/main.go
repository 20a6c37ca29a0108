// Command scanner runs the vulnerability scanner agent standalone: it
// periodically resolves configured image digests, checks them against
// its vulnerability source, and publishes findings on the alerts
// channel, until terminated.
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
	"github.com/jondmarien/hemostat/pkg/scanner"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

func main() {
	if err := run(); err != nil {
		logging.ForAgent("scanner").WithField("error", err.Error()).Fatal("scanner exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := tracing.NewTracerProvider("scanner")
	defer tp.Shutdown(context.Background())

	b, err := bus.NewRedisBus(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer b.Close()

	reg := prometheus.NewRegistry()
	metrics := metricsx.New(reg, "scanner")

	s := scanner.New(scanner.NewCraneResolver(), scanner.NullSource{}, b, metrics, nil, scanner.Config{
		TargetsPath:  cfg.ScanTargetsPath,
		ScanInterval: cfg.ScanInterval,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- s.Run(ctx) }()
	go func() { errCh <- metricsx.Serve(ctx, ":"+cfg.MetricsPort, reg) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			stop()
			return err
		}
	}
	return nil
}
