// Command actuator runs the Actuator agent standalone: it subscribes to
// remediation_needed, gates and executes (or simulates) each action
// against the container runtime, and publishes remediation_complete,
// until terminated.
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
	"github.com/jondmarien/hemostat/pkg/actuator"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

func main() {
	if err := run(); err != nil {
		logging.ForAgent("actuator").WithField("error", err.Error()).Fatal("actuator exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := tracing.NewTracerProvider("actuator")
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
	metrics := metricsx.New(reg, "actuator")

	a := actuator.New(rt, b, metrics, nil, actuator.Config{
		Cooldown:             cfg.CooldownSeconds,
		MaxRetriesPerHour:    cfg.MaxRetriesPerHour,
		DryRun:               cfg.DryRun,
		EnforceExecAllowlist: cfg.EnforceExecAllowlist,
		ExecAllowlistPath:    cfg.ExecAllowlistPath,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- a.Run(ctx) }()
	go func() { errCh <- metricsx.Serve(ctx, ":"+cfg.MetricsPort, reg) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			stop()
			return err
		}
	}
	return nil
}
