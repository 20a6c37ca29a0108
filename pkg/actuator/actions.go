package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/internal/runtime"
)

const (
	restartTimeout    = 10 * time.Second
	restartMaxWait    = 30 * time.Second
	restartPollPeriod = time.Second
	execOutputLimit   = 1000
	swarmServiceLabel = "com.docker.swarm.service.name"
	composeProjectLbl = "com.docker.compose.project"
	composeServiceLbl = "com.docker.compose.service"
)

// restart issues a graceful restart and polls until the container reaches
// the running state or restartMaxWait elapses.
func (a *Actuator) restart(ctx context.Context, container string) events.RemediationResult {
	a.log.WithField("container_name", container).Warn("restarting container")

	if err := a.runtime.RestartContainer(ctx, container, restartTimeout); err != nil {
		return events.RemediationResult{Status: events.StatusFailed, Error: err.Error()}
	}

	deadline := a.clock.Now().Add(restartMaxWait)
	for a.clock.Now().Before(deadline) {
		attrs, err := a.runtime.InspectContainer(ctx, container)
		if err == nil && attrs.Status == "running" {
			return events.RemediationResult{Status: events.StatusSuccess, Details: "container restarted and running"}
		}
		a.clock.Sleep(restartPollPeriod)
	}
	return events.RemediationResult{
		Status: events.StatusFailed,
		Error:  fmt.Sprintf("container did not reach running state within %s", restartMaxWait),
	}
}

// scaleUp increments the replica count of the swarm service the named
// container belongs to. A standalone container not labeled as part of a
// swarm service reports not_applicable rather than an error or failure.
func (a *Actuator) scaleUp(ctx context.Context, container string) events.RemediationResult {
	attrs, err := a.runtime.InspectContainer(ctx, container)
	if err != nil {
		return events.RemediationResult{Status: events.StatusFailed, Error: err.Error()}
	}

	serviceName := attrs.Labels[swarmServiceLabel]
	if serviceName == "" {
		return events.RemediationResult{
			Status: events.StatusNotApplicable,
			Reason: "scale operation not applicable - requires Docker Swarm service",
		}
	}

	current, err := a.runtime.ServiceReplicas(ctx, serviceName)
	if err != nil {
		return events.RemediationResult{
			Status: events.StatusNotApplicable,
			Reason: fmt.Sprintf("swarm service %s not found or not replicated", serviceName),
		}
	}

	newReplicas := current + 1
	if err := a.runtime.UpdateServiceReplicas(ctx, serviceName, newReplicas); err != nil {
		return events.RemediationResult{Status: events.StatusFailed, Error: err.Error()}
	}

	a.log.WithField("container_name", container).
		WithField("service", serviceName).
		Warn("scaled swarm service")
	return events.RemediationResult{
		Status:  events.StatusSuccess,
		Details: fmt.Sprintf("scaled %s from %d to %d replicas", serviceName, current, newReplicas),
	}
}

// cleanup removes stopped containers scoped to the target container's
// compose project/service, or to its image when no compose labels are
// present, then prunes unused volumes. The volume prune is filtered by the
// compose labels; for an unlabeled target it carries no filter and runs
// only when at least one container was removed.
func (a *Actuator) cleanup(ctx context.Context, container string) events.RemediationResult {
	attrs, err := a.runtime.InspectContainer(ctx, container)
	if err != nil {
		return events.RemediationResult{Status: events.StatusFailed, Error: err.Error()}
	}

	project := attrs.Labels[composeProjectLbl]
	service := attrs.Labels[composeServiceLbl]

	var removed int
	containers, err := a.runtime.ListContainers(ctx, true)
	if err != nil {
		return events.RemediationResult{Status: events.StatusFailed, Error: err.Error()}
	}
	for _, c := range containers {
		if c.Status == "running" {
			continue
		}
		if !cleanupScopeMatches(c, project, service, attrs.ImageID) {
			continue
		}
		if err := a.runtime.RemoveContainer(ctx, c.ID, true); err != nil {
			a.log.WithField("container_name", c.Name).WithField("error", err.Error()).
				Warn("failed to remove container during cleanup")
			continue
		}
		removed++
	}

	labelFilter := ""
	if project != "" {
		labelFilter = composeProjectLbl + "=" + project
		if service != "" {
			labelFilter += "," + composeServiceLbl + "=" + service
		}
	}
	if labelFilter == "" && removed == 0 {
		a.log.WithField("container_name", container).
			Info("no compose labels and no containers removed, skipping volume prune")
	} else if err := a.runtime.PruneVolumes(ctx, labelFilter); err != nil {
		a.log.WithField("container_name", container).WithField("error", err.Error()).
			Warn("volume pruning failed")
	}

	a.log.WithField("container_name", container).WithField("removed", removed).
		Info("cleanup complete")
	return events.RemediationResult{
		Status:  events.StatusSuccess,
		Details: fmt.Sprintf("removed %d stopped containers", removed),
	}
}

// cleanupScopeMatches scopes cleanup to the same compose project/service
// when labels are present, falling back to matching containers spawned
// from the same image when the target carries no compose labels.
func cleanupScopeMatches(c runtime.ContainerSummary, project, service, imageID string) bool {
	if project != "" {
		if c.Labels[composeProjectLbl] != project {
			return false
		}
		if service != "" && c.Labels[composeServiceLbl] != service {
			return false
		}
		return true
	}
	return c.Image == imageID
}

// exec runs a diagnostic command inside a running container, rejecting
// (or merely warning on) commands outside the allowlist depending on
// enforceExecAllowlist, and truncating captured output.
func (a *Actuator) exec(ctx context.Context, container, command string) events.RemediationResult {
	if command == "" {
		command = "ps aux"
	}

	if !commandAllowed(command, a.allowlist) {
		if a.enforceExecAllowlist {
			return events.RemediationResult{
				Status: events.StatusRejected,
				Error:  fmt.Sprintf("command not in allowlist (enforce_exec_allowlist=true): %s", command),
			}
		}
		a.log.WithField("container_name", container).WithField("command", command).
			Warn("command not in allowlist, executing anyway")
	}

	attrs, err := a.runtime.InspectContainer(ctx, container)
	if err != nil {
		return events.RemediationResult{Status: events.StatusFailed, Error: err.Error()}
	}
	if attrs.Status != "running" {
		return events.RemediationResult{
			Status: events.StatusFailed,
			Error:  fmt.Sprintf("container not running: %s (status: %s)", container, attrs.Status),
		}
	}

	result, err := a.runtime.Exec(ctx, container, []string{"sh", "-c", command})
	if err != nil {
		return events.RemediationResult{Status: events.StatusFailed, Error: err.Error()}
	}

	output := result.Output
	if len(output) > execOutputLimit {
		output = output[:execOutputLimit]
	}
	return events.RemediationResult{
		Status:  events.StatusSuccess,
		Details: fmt.Sprintf("exit_code=%d output=%s", result.ExitCode, output),
	}
}
