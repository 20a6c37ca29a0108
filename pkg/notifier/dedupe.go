package notifier

import (
	"context"
	"crypto/md5" //nolint:gosec // dedup fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jondmarien/hemostat/internal/events"
)

const keyPrefixAlertSent = "alert_sent:"

// isDuplicateEvent reports whether an equivalent event (same type, same
// minute) already had a Slack notification sent for it.
func (n *Notifier) isDuplicateEvent(ctx context.Context, eventType events.Type, eventTimestamp time.Time) bool {
	hash := eventHash(eventType, eventTimestamp)
	_, err := n.bus.Get(ctx, keyPrefixAlertSent+hash)
	return err == nil
}

// markEventSent records that a notification for this event was just
// delivered, so a duplicate within the same minute is suppressed.
func (n *Notifier) markEventSent(ctx context.Context, eventType events.Type, eventTimestamp time.Time) {
	hash := eventHash(eventType, eventTimestamp)
	if err := n.bus.Set(ctx, keyPrefixAlertSent+hash, "1", n.dedupeTTL); err != nil {
		n.log.WithField("error", err.Error()).Error("failed to record dedup marker")
	}
}

// eventHash ports _get_event_hash: a deterministic fingerprint from the
// event type and its timestamp rounded down to the minute, so that rapid
// duplicate deliveries of the same underlying event collapse to one
// notification.
func eventHash(eventType events.Type, ts time.Time) string {
	minuteTimestamp := ts.UTC().Truncate(time.Minute).Format(time.RFC3339)
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s", eventType, minuteTimestamp)))
	return hex.EncodeToString(sum[:])
}
