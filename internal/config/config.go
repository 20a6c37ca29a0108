// Package config loads HemoStat's runtime configuration from environment
// variables. Every agent in this system is a standalone process launched
// by an orchestrator (Docker Compose, systemd, a swarm service) that sets
// environment variables, so there is no config file to read.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds every tunable named in the external interface table:
// Observer cadence and thresholds, Decider routing and history bounds, AI
// backend selection, Actuator gating, and the universal retry/backoff
// parameters shared by every transport call.
type Config struct {
	// Bus / runtime connection.
	RedisAddr  string `validate:"required"`
	DockerHost string

	// Observer.
	PollInterval        time.Duration `validate:"gt=0"`
	ThresholdCPUPercent float64       `validate:"gt=0"`
	ThresholdMemPercent float64       `validate:"gt=0"`

	// Decider.
	ConfidenceThreshold float64       `validate:"gte=0,lte=1"`
	HistorySize         int           `validate:"gt=0"`
	HistoryTTL          time.Duration `validate:"gt=0"`
	AIModel             string
	AIFallbackEnabled   bool

	// Actuator.
	CooldownSeconds      time.Duration `validate:"gte=0"`
	MaxRetriesPerHour    int           `validate:"gt=0"`
	DryRun               bool
	EnforceExecAllowlist bool
	ExecAllowlistPath    string

	// Retry settings. They are loaded and validated here; no agent reads
	// them (each retry loop in this module uses its own fixed attempts and
	// delays).
	RetryMax   int           `validate:"gt=0"`
	RetryDelay time.Duration `validate:"gt=0"`

	// Notifier.
	SlackWebhookURL string
	AlertEnabled    bool
	AlertEventTTL   time.Duration `validate:"gt=0"`
	AlertMaxEvents  int           `validate:"gt=0"`
	AlertDedupeTTL  time.Duration `validate:"gt=0"`

	// Read model.
	DashboardPort      string
	DashboardMaxEvents int `validate:"gt=0"`

	// Scanner.
	ScanTargetsPath string
	ScanInterval    time.Duration `validate:"gt=0"`

	// Metrics, exported by every agent process on its own port.
	MetricsPort string
}

// Load populates Config from environment variables, applying the
// documented defaults for anything unset, then validates the result.
// Load never panics and never reads a file.
func Load() (*Config, error) {
	cfg := &Config{
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		DockerHost:           os.Getenv("DOCKER_HOST"),
		PollInterval:         getenvSeconds("POLL_INTERVAL", 30),
		ThresholdCPUPercent:  getenvFloat("THRESHOLD_CPU_PERCENT", 85),
		ThresholdMemPercent:  getenvFloat("THRESHOLD_MEMORY_PERCENT", 80),
		ConfidenceThreshold:  getenvFloat("CONFIDENCE_THRESHOLD", 0.7),
		HistorySize:          getenvInt("HISTORY_SIZE", 10),
		HistoryTTL:           getenvSeconds("HISTORY_TTL", 3600),
		AIModel:              os.Getenv("AI_MODEL"),
		AIFallbackEnabled:    getenvBool("AI_FALLBACK_ENABLED", true),
		CooldownSeconds:      getenvSeconds("COOLDOWN_SECONDS", 3600),
		MaxRetriesPerHour:    getenvInt("MAX_RETRIES_PER_HOUR", 3),
		DryRun:               getenvBool("DRY_RUN", false),
		EnforceExecAllowlist: getenvBool("ENFORCE_EXEC_ALLOWLIST", false),
		ExecAllowlistPath:    getenv("EXEC_ALLOWLIST_PATH", ""),
		RetryMax:             getenvInt("RETRY_MAX", 3),
		RetryDelay:           getenvSeconds("RETRY_DELAY", 1),
		SlackWebhookURL:      os.Getenv("SLACK_WEBHOOK_URL"),
		AlertEnabled:         getenvBool("ALERT_ENABLED", true),
		AlertEventTTL:        getenvSeconds("ALERT_EVENT_TTL", 3600),
		AlertMaxEvents:       getenvInt("ALERT_MAX_EVENTS", 100),
		AlertDedupeTTL:       getenvSeconds("ALERT_DEDUPE_TTL", 60),
		DashboardPort:        getenv("DASHBOARD_PORT", "8090"),
		DashboardMaxEvents:   getenvInt("DASHBOARD_MAX_EVENTS", 1000),
		ScanTargetsPath:      getenv("SCAN_TARGETS_PATH", "/etc/hemostat/scan-targets.yaml"),
		ScanInterval:         getenvSeconds("SCAN_INTERVAL", 3600),
		MetricsPort:          getenv("METRICS_PORT", "9090"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return b
}

// getenvSeconds reads an integer env var expressed in seconds into a
// time.Duration.
func getenvSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getenvInt(key, fallbackSeconds)) * time.Second
}
