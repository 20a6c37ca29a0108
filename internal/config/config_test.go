package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"REDIS_ADDR", "DOCKER_HOST", "POLL_INTERVAL", "THRESHOLD_CPU_PERCENT",
		"THRESHOLD_MEMORY_PERCENT", "CONFIDENCE_THRESHOLD", "HISTORY_SIZE",
		"HISTORY_TTL", "AI_MODEL", "AI_FALLBACK_ENABLED", "COOLDOWN_SECONDS",
		"MAX_RETRIES_PER_HOUR", "DRY_RUN", "ENFORCE_EXEC_ALLOWLIST",
		"EXEC_ALLOWLIST_PATH", "RETRY_MAX", "RETRY_DELAY", "SLACK_WEBHOOK_URL",
		"DASHBOARD_PORT", "DASHBOARD_MAX_EVENTS", "SCAN_TARGETS_PATH", "SCAN_INTERVAL",
		"METRICS_PORT",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.ThresholdCPUPercent != 85 {
		t.Errorf("ThresholdCPUPercent = %v, want 85", cfg.ThresholdCPUPercent)
	}
	if cfg.ThresholdMemPercent != 80 {
		t.Errorf("ThresholdMemPercent = %v, want 80", cfg.ThresholdMemPercent)
	}
	if cfg.ConfidenceThreshold != 0.7 {
		t.Errorf("ConfidenceThreshold = %v, want 0.7", cfg.ConfidenceThreshold)
	}
	if cfg.HistorySize != 10 {
		t.Errorf("HistorySize = %v, want 10", cfg.HistorySize)
	}
	if cfg.HistoryTTL != 3600*time.Second {
		t.Errorf("HistoryTTL = %v, want 3600s", cfg.HistoryTTL)
	}
	if !cfg.AIFallbackEnabled {
		t.Error("AIFallbackEnabled should default to true")
	}
	if cfg.CooldownSeconds != 3600*time.Second {
		t.Errorf("CooldownSeconds = %v, want 3600s", cfg.CooldownSeconds)
	}
	if cfg.MaxRetriesPerHour != 3 {
		t.Errorf("MaxRetriesPerHour = %v, want 3", cfg.MaxRetriesPerHour)
	}
	if cfg.DryRun {
		t.Error("DryRun should default to false")
	}
	if cfg.EnforceExecAllowlist {
		t.Error("EnforceExecAllowlist should default to false")
	}
	if cfg.RetryMax != 3 {
		t.Errorf("RetryMax = %v, want 3", cfg.RetryMax)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
	if cfg.MetricsPort != "9090" {
		t.Errorf("MetricsPort = %v, want 9090", cfg.MetricsPort)
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("POLL_INTERVAL", "15")
	t.Setenv("THRESHOLD_CPU_PERCENT", "90")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("AI_MODEL", "claude-3-5-sonnet")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RedisAddr != "redis:6380" {
		t.Errorf("RedisAddr = %q, want redis:6380", cfg.RedisAddr)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v, want 15s", cfg.PollInterval)
	}
	if cfg.ThresholdCPUPercent != 90 {
		t.Errorf("ThresholdCPUPercent = %v, want 90", cfg.ThresholdCPUPercent)
	}
	if cfg.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", cfg.ConfidenceThreshold)
	}
	if !cfg.DryRun {
		t.Error("DryRun should be true")
	}
	if cfg.AIModel != "claude-3-5-sonnet" {
		t.Errorf("AIModel = %q, want claude-3-5-sonnet", cfg.AIModel)
	}
}

func TestLoad_InvalidValueFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("POLL_INTERVAL", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval with invalid env = %v, want fallback 30s", cfg.PollInterval)
	}
}

func TestLoad_NegativeHistorySizeFailsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("HISTORY_SIZE", "-5")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail validation when HISTORY_SIZE is not positive")
	}
}

func TestLoad_InvalidConfidenceThresholdFailsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail validation when CONFIDENCE_THRESHOLD > 1")
	}
}

func TestGetenvBool_InvalidFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRY_RUN", "not-a-bool")
	if got := getenvBool("DRY_RUN", false); got != false {
		t.Errorf("getenvBool with invalid value = %v, want fallback false", got)
	}
}

func TestGetenvFloat_InvalidFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("THRESHOLD_CPU_PERCENT", "not-a-float")
	if got := getenvFloat("THRESHOLD_CPU_PERCENT", 85); got != 85 {
		t.Errorf("getenvFloat with invalid value = %v, want fallback 85", got)
	}
}
