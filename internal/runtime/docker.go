package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	gort "runtime"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/jondmarien/hemostat/internal/tracing"
	hemoerrors "github.com/jondmarien/hemostat/pkg/shared/errors"
)

// DockerRuntime implements ContainerRuntime on the Docker Engine API.
type DockerRuntime struct {
	cli *client.Client
}

// DetectDockerHost mirrors the Python agent base's platform detection:
// inside a container always use the Unix socket (Docker Desktop maps the
// named pipe to it), otherwise use the Windows named pipe on Windows and
// the Unix socket everywhere else.
func DetectDockerHost() string {
	if isInDocker() {
		return "unix:///var/run/docker.sock"
	}
	if gort.GOOS == "windows" {
		return "npipe:////./pipe/docker_engine"
	}
	return "unix:///var/run/docker.sock"
}

func isInDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// NewDockerRuntime builds a Docker client. If host is empty, it is
// detected per DetectDockerHost (or DOCKER_HOST, if set). When
// DOCKER_TLS_VERIFY and DOCKER_CERT_PATH are set, the client is
// configured for TLS exactly as the Docker CLI itself does, via
// go-connections/tlsconfig.
func NewDockerRuntime(host string) (*DockerRuntime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}

	if host == "" {
		if envHost := os.Getenv("DOCKER_HOST"); envHost != "" {
			host = envHost
		} else {
			host = DetectDockerHost()
		}
	}
	opts = append(opts, client.WithHost(host))

	if certPath := os.Getenv("DOCKER_CERT_PATH"); certPath != "" && os.Getenv("DOCKER_TLS_VERIFY") != "" {
		if _, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   certPath + "/ca.pem",
			CertFile: certPath + "/cert.pem",
			KeyFile:  certPath + "/key.pem",
		}); err != nil {
			return nil, hemoerrors.FailedTo("build docker TLS config", err)
		}
		opts = append(opts, client.WithTLSClientConfigFromEnv())
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, hemoerrors.FailedToWithDetails("connect to docker daemon", "runtime", host, err)
	}

	return &DockerRuntime{cli: cli}, nil
}

func (r *DockerRuntime) ListContainers(ctx context.Context, includeExited bool) ([]ContainerSummary, error) {
	ctx, end := tracing.StartRuntimeSpan(ctx, "list", "")
	list, err := r.cli.ContainerList(ctx, container.ListOptions{All: includeExited})
	end(err)
	if err != nil {
		return nil, hemoerrors.FailedTo("list containers", err)
	}

	out := make([]ContainerSummary, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = trimLeadingSlash(c.Names[0])
		}
		out = append(out, ContainerSummary{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			Status: c.State,
			Labels: c.Labels,
		})
	}
	return out, nil
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

func (r *DockerRuntime) InspectContainer(ctx context.Context, id string) (ContainerAttrs, error) {
	ctx, end := tracing.StartRuntimeSpan(ctx, "inspect", id)
	info, err := r.cli.ContainerInspect(ctx, id)
	end(err)
	if err != nil {
		return ContainerAttrs{}, hemoerrors.FailedToWithDetails("inspect container", "runtime", id, err)
	}

	healthStatus := "unknown"
	exitCode := 0
	if info.State != nil {
		exitCode = info.State.ExitCode
		if info.State.Health != nil {
			healthStatus = info.State.Health.Status
		}
	}

	return ContainerAttrs{
		Status:       info.State.Status,
		HealthStatus: healthStatus,
		ExitCode:     exitCode,
		RestartCount: info.RestartCount,
		Labels:       info.Config.Labels,
		ImageID:      info.Image,
	}, nil
}

// rawStats mirrors the fields of Docker's stats JSON this module consumes.
// Decoding into a purpose-built struct (rather than the full SDK type, which
// has version-dependent fields) keeps this stable across Docker API versions.
type rawStats struct {
	CPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemUsage uint64 `json:"system_cpu_usage"`
		OnlineCPUs  uint32 `json:"online_cpus"`
	} `json:"cpu_stats"`
	PreCPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemUsage uint64 `json:"system_cpu_usage"`
	} `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
		Limit uint64 `json:"limit"`
		Stats struct {
			InactiveFile      uint64 `json:"inactive_file"`
			TotalInactiveFile uint64 `json:"total_inactive_file"`
		} `json:"stats"`
	} `json:"memory_stats"`
	Networks map[string]struct {
		RxBytes uint64 `json:"rx_bytes"`
		TxBytes uint64 `json:"tx_bytes"`
	} `json:"networks"`
	BlkioStats struct {
		IOServiceBytesRecursive []struct {
			Op    string `json:"op"`
			Value uint64 `json:"value"`
		} `json:"io_service_bytes_recursive"`
	} `json:"blkio_stats"`
}

func (r *DockerRuntime) ContainerStats(ctx context.Context, id string) (Stats, error) {
	ctx, end := tracing.StartRuntimeSpan(ctx, "stats", id)
	resp, err := r.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		end(err)
		return Stats{}, hemoerrors.FailedToWithDetails("get container stats", "runtime", id, err)
	}
	defer resp.Body.Close()

	var raw rawStats
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		end(err)
		return Stats{}, hemoerrors.FailedToWithDetails("decode container stats", "runtime", id, err)
	}
	end(nil)

	var netRx, netTx uint64
	for _, n := range raw.Networks {
		netRx += n.RxBytes
		netTx += n.TxBytes
	}

	var blkioRead, blkioWrite uint64
	for _, entry := range raw.BlkioStats.IOServiceBytesRecursive {
		switch entry.Op {
		case "Read":
			blkioRead += entry.Value
		case "Write":
			blkioWrite += entry.Value
		}
	}

	inactiveFile := raw.MemoryStats.Stats.InactiveFile
	if inactiveFile == 0 {
		inactiveFile = raw.MemoryStats.Stats.TotalInactiveFile
	}

	return Stats{
		CPUUsageTotal:      raw.CPUStats.CPUUsage.TotalUsage,
		PreCPUUsageTotal:   raw.PreCPUStats.CPUUsage.TotalUsage,
		SystemCPUUsage:     raw.CPUStats.SystemUsage,
		PreSystemCPUUsage:  raw.PreCPUStats.SystemUsage,
		OnlineCPUs:         raw.CPUStats.OnlineCPUs,
		MemoryUsage:        raw.MemoryStats.Usage,
		MemoryLimit:        raw.MemoryStats.Limit,
		MemoryInactiveFile: inactiveFile,
		NetRx:              netRx,
		NetTx:              netTx,
		BlkioRead:          blkioRead,
		BlkioWrite:         blkioWrite,
	}, nil
}

func (r *DockerRuntime) Exec(ctx context.Context, id string, cmd []string) (ExecResult, error) {
	ctx, end := tracing.StartRuntimeSpan(ctx, "exec", id)

	execID, err := r.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		end(err)
		return ExecResult{}, hemoerrors.FailedToWithDetails("create exec", "runtime", id, err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		end(err)
		return ExecResult{}, hemoerrors.FailedToWithDetails("attach exec", "runtime", id, err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, attach.Reader); err != nil && err != io.EOF {
		end(err)
		return ExecResult{}, hemoerrors.FailedToWithDetails("read exec output", "runtime", id, err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, execID.ID)
	end(err)
	if err != nil {
		return ExecResult{}, hemoerrors.FailedToWithDetails("inspect exec", "runtime", id, err)
	}

	return ExecResult{ExitCode: inspect.ExitCode, Output: buf.String()}, nil
}

func (r *DockerRuntime) RestartContainer(ctx context.Context, id string, timeout time.Duration) error {
	ctx, end := tracing.StartRuntimeSpan(ctx, "restart", id)
	seconds := int(timeout.Seconds())
	err := r.cli.ContainerRestart(ctx, id, container.StopOptions{Timeout: &seconds})
	end(err)
	if err != nil {
		return hemoerrors.FailedToWithDetails("restart container", "runtime", id, err)
	}
	return nil
}

func (r *DockerRuntime) RemoveContainer(ctx context.Context, id string, removeVolumes bool) error {
	ctx, end := tracing.StartRuntimeSpan(ctx, "remove", id)
	err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{RemoveVolumes: removeVolumes, Force: true})
	end(err)
	if err != nil {
		return hemoerrors.FailedToWithDetails("remove container", "runtime", id, err)
	}
	return nil
}

// ServiceReplicas returns the current replica count of a replicated
// swarm service, so callers can compute a new target (e.g. current+1 for
// a scale-up) before calling UpdateServiceReplicas.
func (r *DockerRuntime) ServiceReplicas(ctx context.Context, serviceName string) (uint64, error) {
	ctx, end := tracing.StartRuntimeSpan(ctx, "service_replicas", serviceName)
	svc, _, err := r.cli.ServiceInspectWithRaw(ctx, serviceName, swarm.ServiceInspectOptions{})
	if err != nil {
		end(err)
		return 0, hemoerrors.FailedToWithDetails("inspect service", "runtime", serviceName, err)
	}
	if svc.Spec.Mode.Replicated == nil || svc.Spec.Mode.Replicated.Replicas == nil {
		end(errNotReplicated)
		return 0, hemoerrors.FailedToWithDetails("read service replicas", "runtime", serviceName,
			errNotReplicated)
	}
	end(nil)
	return *svc.Spec.Mode.Replicated.Replicas, nil
}

func (r *DockerRuntime) UpdateServiceReplicas(ctx context.Context, serviceName string, replicas uint64) error {
	ctx, end := tracing.StartRuntimeSpan(ctx, "update_service_replicas", serviceName)
	svc, _, err := r.cli.ServiceInspectWithRaw(ctx, serviceName, swarm.ServiceInspectOptions{})
	if err != nil {
		end(err)
		return hemoerrors.FailedToWithDetails("inspect service", "runtime", serviceName, err)
	}

	spec := svc.Spec
	if spec.Mode.Replicated == nil {
		end(errNotReplicated)
		return hemoerrors.FailedToWithDetails("update service replicas", "runtime", serviceName,
			errNotReplicated)
	}
	spec.Mode.Replicated.Replicas = &replicas

	_, err = r.cli.ServiceUpdate(ctx, svc.ID, svc.Version, spec, swarm.ServiceUpdateOptions{})
	end(err)
	if err != nil {
		return hemoerrors.FailedToWithDetails("update service replicas", "runtime", serviceName, err)
	}
	return nil
}

var errNotReplicated = notReplicatedError{}

type notReplicatedError struct{}

func (notReplicatedError) Error() string { return "service is not running in replicated mode" }

func (r *DockerRuntime) PruneVolumes(ctx context.Context, labelFilter string) error {
	ctx, end := tracing.StartRuntimeSpan(ctx, "prune_volumes", labelFilter)
	args := volumeFilterArgs(labelFilter)
	_, err := r.cli.VolumesPrune(ctx, args)
	end(err)
	if err != nil {
		return hemoerrors.FailedToWithDetails("prune volumes", "runtime", labelFilter, err)
	}
	return nil
}

func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

// volumeFilterArgs is split out so runtime_test.go can exercise the label
// filter construction without a live daemon.
func volumeFilterArgs(labelFilter string) filters.Args {
	if labelFilter == "" {
		return filters.NewArgs()
	}
	return filters.NewArgs(filters.Arg("label", labelFilter))
}
