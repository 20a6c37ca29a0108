// Package scanner implements the vulnerability scanner agent: it
// periodically resolves the content digest of every configured container
// image and checks it against a pluggable vulnerability source, storing
// every scan report and publishing it on the alerts channel when its
// worst finding is high or critical. Unlike
// Observer/Decider/Actuator, this agent is explicitly out-of-core: a
// failed or skipped scan never affects remediation.
package scanner

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/internal/metricsx"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

// Config is the subset of internal/config.Config Scanner needs.
type Config struct {
	TargetsPath  string
	ScanInterval time.Duration
}

// Scanner periodically scans configured images and publishes findings.
// The zero value is not usable; build one with New.
type Scanner struct {
	resolver ImageResolver
	source   VulnerabilitySource
	bus      bus.Bus
	clock    clock.Clock
	metrics  *metricsx.Registry
	log      *logrus.Entry

	targetsPath  string
	scanInterval time.Duration

	mu      sync.Mutex
	targets []string
}

// New builds a Scanner. resolver and b must be non-nil; source defaults
// to NullSource (fully offline) when nil and clk defaults to the real
// wall clock when nil.
func New(resolver ImageResolver, source VulnerabilitySource, b bus.Bus, m *metricsx.Registry, clk clock.Clock, cfg Config) *Scanner {
	if clk == nil {
		clk = clock.New()
	}
	if source == nil {
		source = NullSource{}
	}

	targets, err := loadTargets(cfg.TargetsPath)
	log := logging.ForAgent("scanner")
	if err != nil {
		log.WithField("error", err.Error()).Warn("failed to load scan targets, using defaults")
		targets = defaultTargets
	}

	return &Scanner{
		resolver:     resolver,
		source:       source,
		bus:          b,
		clock:        clk,
		metrics:      m,
		log:          log,
		targetsPath:  cfg.TargetsPath,
		scanInterval: cfg.ScanInterval,
		targets:      targets,
	}
}

// Run blocks, scanning every configured image on the configured interval
// and reloading the targets file on write, until ctx is canceled.
func (s *Scanner) Run(ctx context.Context) error {
	s.log.Info("starting vulnerability scanner loop")

	if s.targetsPath != "" {
		go s.watchTargets(ctx)
	}

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	s.scanCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("vulnerability scanner loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scanCycle(ctx)
		}
	}
}

// scanCycle scans every currently configured target. A failure on one
// target is logged and does not stop the rest of the cycle.
func (s *Scanner) scanCycle(ctx context.Context) {
	s.log.Info("starting vulnerability scan cycle")
	for _, image := range s.currentTargets() {
		if err := s.scanTarget(ctx, image); err != nil {
			s.log.WithField("image", image).WithField("error", err.Error()).Error("scan failed")
			if s.metrics != nil {
				s.metrics.ScansTotal.WithLabelValues("error").Inc()
			}
		} else if s.metrics != nil {
			s.metrics.ScansTotal.WithLabelValues("success").Inc()
		}
	}
	s.log.Info("vulnerability scan cycle completed")
}

func (s *Scanner) scanTarget(ctx context.Context, image string) error {
	start := s.clock.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ScanDuration.Observe(s.clock.Since(start).Seconds())
		}
	}()

	digest, err := s.resolver.Digest(ctx, image)
	if err != nil {
		return err
	}

	findings, err := s.source.Findings(ctx, image, digest)
	if err != nil {
		return err
	}

	for _, f := range findings {
		if s.metrics != nil {
			s.metrics.VulnerabilitiesFound.WithLabelValues(string(f.Severity)).Inc()
		}
	}

	summary := events.VulnerabilitySummary{
		Image:    image,
		Digest:   digest,
		Findings: findings,
		ScanTime: s.clock.Now().UTC(),
	}

	s.storeReport(ctx, summary)

	if worst := worstSeverity(findings); worst == events.VulnHigh || worst == events.VulnCritical {
		s.publishAlert(ctx, summary)
	}

	return nil
}

func (s *Scanner) storeReport(ctx context.Context, summary events.VulnerabilitySummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("failed to marshal scan report")
		return
	}
	key := events.ScanStateKey(summary.Digest)
	if err := s.bus.Set(ctx, key, string(raw), events.TTLScanState); err != nil {
		s.log.WithField("error", err.Error()).Error("failed to store scan report")
	}
}

func (s *Scanner) publishAlert(ctx context.Context, summary events.VulnerabilitySummary) {
	envelope := events.NewEnvelope(events.TypeVulnerabilityAlert, events.AgentScanner, summary)
	payload, err := json.Marshal(envelope)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("failed to marshal vulnerability alert")
		return
	}
	if err := s.bus.Publish(ctx, events.ChannelAlerts, payload); err != nil {
		s.log.WithField("error", err.Error()).Error("failed to publish vulnerability alert")
	}
}

// worstSeverity reports the highest-ranked severity among findings, or
// the zero value when findings is empty.
func worstSeverity(findings []events.VulnerabilityFinding) events.VulnerabilitySeverity {
	rank := map[events.VulnerabilitySeverity]int{
		events.VulnLow:      1,
		events.VulnMedium:   2,
		events.VulnHigh:     3,
		events.VulnCritical: 4,
	}
	var worst events.VulnerabilitySeverity
	for _, f := range findings {
		if rank[f.Severity] > rank[worst] {
			worst = f.Severity
		}
	}
	return worst
}

func (s *Scanner) currentTargets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.targets))
	copy(out, s.targets)
	return out
}

// watchTargets reloads the targets file whenever it changes on disk, so
// an operator can add or remove scan targets without restarting the
// process. Watcher failures are logged and leave the last-loaded
// targets in effect.
func (s *Scanner) watchTargets(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.WithField("error", err.Error()).Warn("failed to start scan-targets watcher")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.targetsPath)); err != nil {
		s.log.WithField("error", err.Error()).Warn("failed to watch scan-targets directory")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.targetsPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reloadTargets()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.WithField("error", err.Error()).Warn("scan-targets watcher error")
		}
	}
}

func (s *Scanner) reloadTargets() {
	targets, err := loadTargets(s.targetsPath)
	if err != nil {
		s.log.WithField("error", err.Error()).Warn("failed to reload scan targets, keeping previous list")
		return
	}
	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()
	s.log.WithField("count", len(targets)).Info("reloaded scan targets")
}
