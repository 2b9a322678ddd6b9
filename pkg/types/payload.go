package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PayloadVersion is the wire format version stamped on every event.
const PayloadVersion = "1"

// hashPrefixLen is the truncated length of payload and reason hashes.
const hashPrefixLen = 16

// WebhookPayload is one outbound event. Decision, Metrics and Baseline are
// kept as generic maps so CanonicalJSON can emit them with sorted keys.
type WebhookPayload struct {
	Version    string
	EventID    string
	EventType  EventType
	Timestamp  time.Time
	SourceName string
	SourceType string
	Decision   map[string]any
	Metrics    map[string]any
	Baseline   map[string]any
	AgentID    string
}

// NewWebhookPayload assembles the event for one decision, stamping the
// format version, a fresh event id, and the dispatch time.
func NewWebhookPayload(et EventType, sourceName, sourceType, agentID string, d Decision, now time.Time) WebhookPayload {
	baseline := map[string]any{}
	if d.Baseline != nil {
		baseline = d.Baseline.PayloadFields()
	}
	return WebhookPayload{
		Version:    PayloadVersion,
		EventID:    uuid.NewString(),
		EventType:  et,
		Timestamp:  now.UTC(),
		SourceName: sourceName,
		SourceType: sourceType,
		Decision:   d.PayloadFields(),
		Metrics:    normalizedMetrics(d.Metrics),
		Baseline:   baseline,
		AgentID:    agentID,
	}
}

// CanonicalJSON renders the payload as compact JSON with every object's keys
// sorted, so identical inputs always produce identical bytes. Receivers can
// therefore verify signatures against the raw body and deduplicate on its
// hash.
func (p WebhookPayload) CanonicalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"version":    p.Version,
		"event_id":   p.EventID,
		"event_type": string(p.EventType),
		"timestamp":  p.Timestamp.UTC().Format(time.RFC3339Nano),
		"source":     map[string]any{"name": p.SourceName, "type": p.SourceType},
		"decision":   orEmpty(p.Decision),
		"metrics":    orEmpty(p.Metrics),
		"baseline":   orEmpty(p.Baseline),
		"context":    map[string]any{"agent_id": p.AgentID},
	})
}

// PayloadHash identifies a canonical body: the first 16 hex characters of
// its SHA-256. Stored with every delivery log entry.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}

// normalizedMetrics deep-copies a metrics map into its wire form, rendering
// time values as RFC 3339 strings. A nil input becomes an empty map so the
// payload always carries a metrics object.
func normalizedMetrics(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	return out
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
