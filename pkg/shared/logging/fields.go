// Package logging provides the structured-logging conventions shared by
// every HemoStat agent: a chainable field builder and a per-agent logrus
// instance selected by LOG_LEVEL/LOG_FORMAT.
package logging

import "time"

// Fields is a chainable builder for structured log fields, mirroring the
// way each agent attaches the same handful of contextual keys to its log
// lines (component, container, operation, duration, error).
type Fields map[string]interface{}

// NewFields returns an empty field set.
func NewFields() Fields {
	return Fields{}
}

// Component records which agent or subsystem emitted the log line.
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation records the logical operation in progress (e.g. "restart", "poll").
func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

// Container records the target container's identity. Name is optional;
// when empty only the type-less container id is set.
func (f Fields) Container(id, name string) Fields {
	f["container_id"] = id
	if name != "" {
		f["container_name"] = name
	}
	return f
}

// Action records the remediation action under consideration.
func (f Fields) Action(action string) Fields {
	f["action"] = action
	return f
}

// Duration records an elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error attaches an error's message. A nil error is a no-op so call sites
// can unconditionally chain it.
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// Confidence records a decider confidence score.
func (f Fields) Confidence(c float64) Fields {
	f["confidence"] = c
	return f
}

// EventType records the bus event type of the message being handled.
func (f Fields) EventType(t string) Fields {
	if t != "" {
		f["event_type"] = t
	}
	return f
}
