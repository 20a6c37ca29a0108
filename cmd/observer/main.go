// Command observer runs the Observer agent standalone: it polls the
// configured container runtime, publishes health_alert events, and
// exports Prometheus metrics, until terminated.
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
	"github.com/jondmarien/hemostat/internal/runtime"
	"github.com/jondmarien/hemostat/internal/tracing"
	"github.com/jondmarien/hemostat/pkg/observer"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

func main() {
	if err := run(); err != nil {
		logging.ForAgent("observer").WithField("error", err.Error()).Fatal("observer exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := tracing.NewTracerProvider("observer")
	defer tp.Shutdown(context.Background())

	b, err := bus.NewRedisBus(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer b.Close()

	rt, err := runtime.NewDockerRuntime(cfg.DockerHost)
	if err != nil {
		return fmt.Errorf("connect to container runtime: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := metricsx.New(reg, "observer")

	o := observer.New(rt, b, metrics, nil, observer.Config{
		PollInterval:        cfg.PollInterval,
		ThresholdCPUPercent: cfg.ThresholdCPUPercent,
		ThresholdMemPercent: cfg.ThresholdMemPercent,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- o.Run(ctx) }()
	go func() { errCh <- metricsx.Serve(ctx, ":"+cfg.MetricsPort, reg) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			stop()
			return err
		}
	}
	return nil
}
