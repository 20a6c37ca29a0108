package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	loggers = map[string]*logrus.Entry{}
)

// ForAgent returns a cached logrus entry namespaced to the given agent
// (e.g. "observer", "decider"), configured once from LOG_LEVEL and
// LOG_FORMAT. All agents share the same output formatting conventions so
// log aggregation can key on the "agent" field.
func ForAgent(agent string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()

	if entry, ok := loggers[agent]; ok {
		return entry
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(levelFromEnv())
	logger.SetFormatter(formatterFromEnv())

	entry := logger.WithField("agent", agent)
	loggers[agent] = entry
	return entry
}

func levelFromEnv() logrus.Level {
	raw := strings.ToUpper(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	level, err := logrus.ParseLevel(strings.ToLower(raw))
	if raw == "" || err != nil {
		return logrus.InfoLevel
	}
	return level
}

func formatterFromEnv() logrus.Formatter {
	if strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) == "json" {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}
