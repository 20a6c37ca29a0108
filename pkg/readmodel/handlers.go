package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
)

var errContainerNotFound = errors.New("container not found")

// decode converts an Envelope/StoredEvent's loosely-typed Data field
// (already a Go value after json.Unmarshal, usually map[string]interface{})
// into the concrete payload type it's known to carry.
func decode[T any](data interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAllEvents ports get_all_events: the unified timeline, newest first.
func (s *Server) handleAllEvents(w http.ResponseWriter, r *http.Request) {
	limit := s.limitParam(r)
	out, err := cachedFetch(s.cache, "events:all:"+strconv.Itoa(limit), cacheTTL, func() ([]events.StoredEvent, error) {
		entries, err := s.fetchTimeline(r.Context(), events.KeyEventsAll, limit)
		if err != nil {
			return nil, err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
		return entries, nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEventsByType ports get_events_by_type: one event type's timeline,
// in storage order (newest-pushed-first, unsorted).
func (s *Server) handleEventsByType(w http.ResponseWriter, r *http.Request) {
	eventType := events.Type(chi.URLParam(r, "type"))
	limit := s.limitParam(r)
	key := events.EventsByTypeKey(eventType)

	out, err := cachedFetch(s.cache, "events:"+string(eventType)+":"+strconv.Itoa(limit), cacheTTL, func() ([]events.StoredEvent, error) {
		return s.fetchTimeline(r.Context(), key, limit)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleContainerStats ports get_container_stats.
func (s *Server) handleContainerStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := events.ContainerKey(id)

	state, err := cachedFetch(s.cache, "container:"+id, cacheTTL, func() (*events.ContainerState, error) {
		raw, err := s.bus.Get(r.Context(), key)
		if err != nil {
			if err == bus.ErrKeyNotFound {
				return nil, nil
			}
			return nil, err
		}
		var cs events.ContainerState
		if err := json.Unmarshal([]byte(raw), &cs); err != nil {
			s.log.Error(err, "malformed container state JSON", "container_id", id)
			return nil, nil
		}
		return &cs, nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, errContainerNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleActiveContainers ports get_active_containers: SCAN over the
// container-state keyspace, returning the bare container IDs.
func (s *Server) handleActiveContainers(w http.ResponseWriter, r *http.Request) {
	ids, err := cachedFetch(s.cache, "containers:active", cacheTTL, func() ([]string, error) {
		keys, err := s.bus.Scan(r.Context(), events.KeyPrefixContainer+"*")
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(keys))
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, events.KeyPrefixContainer))
		}
		sort.Strings(ids)
		return ids, nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// remediationStats is the aggregate get_remediation_stats returns.
type remediationStats struct {
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	Rejected    int     `json:"rejected"`
	SuccessRate float64 `json:"success_rate"`
}

const remediationStatsSampleSize = 1000

// handleRemediationStats ports get_remediation_stats.
func (s *Server) handleRemediationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := cachedFetch(s.cache, "remediation:stats", cacheTTL, func() (remediationStats, error) {
		return s.remediationStats(r.Context())
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) remediationStats(ctx context.Context) (remediationStats, error) {
	entries, err := s.fetchTimeline(ctx, events.EventsByTypeKey(events.TypeRemediationComplete), remediationStatsSampleSize)
	if err != nil {
		return remediationStats{}, err
	}

	var stats remediationStats
	stats.Total = len(entries)
	for _, e := range entries {
		outcome, err := decode[events.RemediationOutcome](e.Data)
		if err != nil {
			continue
		}
		switch outcome.Result.Status {
		case events.StatusSuccess:
			stats.Success++
		case events.StatusFailed:
			stats.Failed++
		case events.StatusRejected:
			stats.Rejected++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = round1(float64(stats.Success) / float64(stats.Total) * 100)
	}
	return stats, nil
}

// handleFalseAlarmCount ports get_false_alarm_count via LLEN.
func (s *Server) handleFalseAlarmCount(w http.ResponseWriter, r *http.Request) {
	count, err := cachedFetch(s.cache, "false_alarms:count", cacheTTL, func() (int64, error) {
		return s.bus.LLen(r.Context(), events.EventsByTypeKey(events.TypeFalseAlarm))
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// metricsSummary bundles the four figures render_metrics_cards displays
// in one response, so the dashboard can populate its header in a single
// round trip.
type metricsSummary struct {
	Remediation      remediationStats `json:"remediation"`
	FalseAlarmCount  int64            `json:"false_alarm_count"`
	ActiveContainers int              `json:"active_containers"`
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	rStats, err := s.remediationStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	falseAlarms, err := s.bus.LLen(r.Context(), events.EventsByTypeKey(events.TypeFalseAlarm))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	keys, err := s.bus.Scan(r.Context(), events.KeyPrefixContainer+"*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, metricsSummary{
		Remediation:      rStats,
		FalseAlarmCount:  falseAlarms,
		ActiveContainers: len(keys),
	})
}

// fetchTimeline reads up to limit entries from a timeline key, skipping
// (and logging) any malformed entry rather than failing the whole request.
func (s *Server) fetchTimeline(ctx context.Context, key string, limit int) ([]events.StoredEvent, error) {
	raw, err := s.bus.LRange(ctx, key, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}

	out := make([]events.StoredEvent, 0, len(raw))
	for _, item := range raw {
		var e events.StoredEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.log.Error(err, "skipping malformed stored event", "key", key)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Server) limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.maxEvents
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return s.maxEvents
	}
	if n > s.maxEvents {
		return s.maxEvents
	}
	return n
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
