package notifier

import (
	"context"
	"encoding/json"

	"github.com/jondmarien/hemostat/internal/events"
)

// storeEvent ports _store_event: append a StoredEvent to both the
// type-specific timeline and the unified events:all timeline, each
// bounded to maxEvents and carrying the same TTL.
func (n *Notifier) storeEvent(ctx context.Context, eventType events.Type, agent events.Agent, data interface{}) {
	entry := events.StoredEvent{
		Timestamp: n.clock.Now().UTC(),
		Agent:     agent,
		EventType: eventType,
		Data:      data,
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		n.log.WithField("error", err.Error()).Error("failed to marshal stored event")
		return
	}

	n.appendTimeline(ctx, events.EventsByTypeKey(eventType), string(payload))
	n.appendTimeline(ctx, events.KeyEventsAll, string(payload))
}

func (n *Notifier) appendTimeline(ctx context.Context, key, payload string) {
	if err := n.bus.LPush(ctx, key, payload); err != nil {
		n.log.WithField("key", key).WithField("error", err.Error()).Error("failed to append event")
		return
	}
	if err := n.bus.LTrim(ctx, key, int64(n.maxEvents)); err != nil {
		n.log.WithField("key", key).WithField("error", err.Error()).Error("failed to trim event timeline")
	}
	if err := n.bus.Expire(ctx, key, n.eventTTL); err != nil {
		n.log.WithField("key", key).WithField("error", err.Error()).Error("failed to set event timeline TTL")
	}
}
