// Package runtime abstracts the container runtime Observer polls and
// Actuator mutates. Docker is the only implementation (internal/runtime/docker.go);
// the interface exists so agent logic is testable against a fake runtime
// without a live daemon.
package runtime

import (
	"context"
	"time"
)

// ContainerSummary is one entry from a runtime-wide list, including
// exited containers.
type ContainerSummary struct {
	ID     string
	Name   string
	Image  string
	Status string
	Labels map[string]string
}

// ContainerAttrs is the subset of container inspect data Observer and
// Actuator need: health, exit code, restart count, and the labels used
// to scope compose/swarm operations.
type ContainerAttrs struct {
	Status       string
	HealthStatus string
	ExitCode     int
	RestartCount int
	Labels       map[string]string
	ImageID      string
}

// Stats is a single non-streaming snapshot of a container's resource
// counters, as returned by the runtime's stats API.
type Stats struct {
	CPUUsageTotal      uint64
	PreCPUUsageTotal   uint64
	SystemCPUUsage     uint64
	PreSystemCPUUsage  uint64
	OnlineCPUs         uint32
	MemoryUsage        uint64
	MemoryLimit        uint64
	MemoryInactiveFile uint64
	NetRx              uint64
	NetTx              uint64
	BlkioRead          uint64
	BlkioWrite         uint64
}

// ExecResult is the outcome of a single exec invocation.
type ExecResult struct {
	ExitCode int
	Output   string
}

// ContainerRuntime is every runtime operation Observer and Actuator
// need: list (including exited), inspect, single-snapshot stats, exec in
// a running container, restart (graceful, bounded timeout), remove (with
// volumes), service update (replica count), and volume prune
// (label-filtered).
type ContainerRuntime interface {
	ListContainers(ctx context.Context, includeExited bool) ([]ContainerSummary, error)
	InspectContainer(ctx context.Context, id string) (ContainerAttrs, error)
	ContainerStats(ctx context.Context, id string) (Stats, error)
	Exec(ctx context.Context, id string, cmd []string) (ExecResult, error)

	RestartContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string, removeVolumes bool) error
	ServiceReplicas(ctx context.Context, serviceName string) (uint64, error)
	UpdateServiceReplicas(ctx context.Context, serviceName string, replicas uint64) error
	PruneVolumes(ctx context.Context, labelFilter string) error

	Close() error
}

// CPUPercent implements Docker's official CPU formula:
// (cpu_delta / system_delta) * online_cpus * 100, uncapped above 100 to
// allow multi-core bursts, 0 when system_delta is 0 or the result would
// be negative.
func CPUPercent(s Stats) float64 {
	cpuDelta := float64(s.CPUUsageTotal) - float64(s.PreCPUUsageTotal)
	systemDelta := float64(s.SystemCPUUsage) - float64(s.PreSystemCPUUsage)
	if systemDelta == 0 {
		return 0.0
	}

	onlineCPUs := s.OnlineCPUs
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}

	pct := (cpuDelta / systemDelta) * float64(onlineCPUs) * 100.0
	if pct < 0 {
		return 0.0
	}
	return pct
}

// MemoryPercent excludes cache from usage (matching docker stats
// behavior): (usage - inactive_file) / limit * 100, clamped to [0, 100],
// 0 when limit is 0.
func MemoryPercent(s Stats) float64 {
	if s.MemoryLimit == 0 {
		return 0.0
	}

	actualUsage := float64(s.MemoryUsage) - float64(s.MemoryInactiveFile)
	pct := (actualUsage / float64(s.MemoryLimit)) * 100.0

	if pct < 0 {
		return 0.0
	}
	if pct > 100 {
		return 100.0
	}
	return pct
}
