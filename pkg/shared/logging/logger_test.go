package logging

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestForAgent_Caches(t *testing.T) {
	a := ForAgent("test-agent-cache")
	b := ForAgent("test-agent-cache")
	if a != b {
		t.Error("ForAgent should return the same entry for the same agent name")
	}
	if a.Data["agent"] != "test-agent-cache" {
		t.Errorf("agent field = %v, want test-agent-cache", a.Data["agent"])
	}
}

func TestLevelFromEnv_Default(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	if got := levelFromEnv(); got != logrus.InfoLevel {
		t.Errorf("levelFromEnv() = %v, want Info", got)
	}
}

func TestLevelFromEnv_Explicit(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if got := levelFromEnv(); got != logrus.DebugLevel {
		t.Errorf("levelFromEnv() = %v, want Debug", got)
	}
}

func TestLevelFromEnv_Invalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "not-a-level")
	if got := levelFromEnv(); got != logrus.InfoLevel {
		t.Errorf("levelFromEnv() with invalid value = %v, want Info fallback", got)
	}
}

func TestFormatterFromEnv_JSON(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	if _, ok := formatterFromEnv().(*logrus.JSONFormatter); !ok {
		t.Error("formatterFromEnv() should return JSONFormatter when LOG_FORMAT=json")
	}
}

func TestFormatterFromEnv_Text(t *testing.T) {
	os.Unsetenv("LOG_FORMAT")
	if _, ok := formatterFromEnv().(*logrus.TextFormatter); !ok {
		t.Error("formatterFromEnv() should default to TextFormatter")
	}
}
