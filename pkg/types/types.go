package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// CollectStatus records whether a connector run produced usable data.
type CollectStatus string

const (
	CollectSuccess CollectStatus = "SUCCESS"
	CollectFailed  CollectStatus = "COLLECT_FAILED"
)

// Status classifies the outcome of one drift evaluation.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusAnomaly Status = "ANOMALY"
	StatusUnknown Status = "UNKNOWN"
)

// Reason codes attached to WARNING and ANOMALY decisions. The set is closed:
// downstream consumers are expected to switch on these values.
const (
	ReasonCollectFailed  = "COLLECT_FAILED"
	ReasonStaleData      = "STALE_DATA"
	ReasonCollectionGap  = "COLLECTION_GAP"
	ReasonNoNewData      = "NO_NEW_DATA"
	ReasonBelowMinVolume = "BELOW_MIN_VOLUME"
	ReasonVolumeLow      = "VOLUME_LOW"
	ReasonVolumeHigh     = "VOLUME_HIGH"
	ReasonZeroVolume     = "ZERO_VOLUME"
	ReasonSchemaDrift    = "SCHEMA_DRIFT"
)

// EventType labels an outbound webhook event.
type EventType string

const (
	EventAnomaly  EventType = "anomaly"
	EventWarning  EventType = "warning"
	EventRecovery EventType = "recovery"
	EventInfo     EventType = "info"
)

// EventTypeForStatus maps a decision status to the event type published for
// it. OK maps to recovery: an OK decision only reaches a webhook when the
// source transitions back from a bad state.
func EventTypeForStatus(s Status) EventType {
	switch s {
	case StatusAnomaly:
		return EventAnomaly
	case StatusWarning:
		return EventWarning
	case StatusOK:
		return EventRecovery
	default:
		return EventInfo
	}
}

// SchemaColumn is one column of a source's observed result schema.
type SchemaColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Snapshot is one collection attempt against a monitored source, successful
// or not. Metrics and Metadata round-trip through JSON in the store, so
// values read back arrive as generic JSON types (float64 numbers, RFC 3339
// strings, []any schemas); the accessors tolerate both forms.
type Snapshot struct {
	ID            int64
	SourceName    string
	CollectedAt   time.Time
	CollectStatus CollectStatus
	Metrics       map[string]any
	Metadata      map[string]any
}

// IsSuccess reports whether the snapshot carries usable metrics.
func (s Snapshot) IsSuccess() bool { return s.CollectStatus == CollectSuccess }

// RowCount returns the row_count metric if present.
func (s Snapshot) RowCount() (int64, bool) {
	v, ok := s.Metrics["row_count"]
	if !ok {
		return 0, false
	}
	return asInt64(v)
}

// LatestTimestamp returns the latest_timestamp metric if present.
func (s Snapshot) LatestTimestamp() (time.Time, bool) {
	v, ok := s.Metrics["latest_timestamp"]
	if !ok {
		return time.Time{}, false
	}
	return asTime(v)
}

// Schema returns the column schema recorded in snapshot metadata, or nil.
func (s Snapshot) Schema() []SchemaColumn {
	switch cols := s.Metadata["schema"].(type) {
	case []SchemaColumn:
		return cols
	case []any:
		out := make([]SchemaColumn, 0, len(cols))
		for _, c := range cols {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			typ, _ := m["type"].(string)
			out = append(out, SchemaColumn{Name: name, Type: typ})
		}
		return out
	}
	return nil
}

// DurationMS returns the collection duration recorded in metadata.
func (s Snapshot) DurationMS() (int64, bool) {
	v, ok := s.Metadata["duration_ms"]
	if !ok {
		return 0, false
	}
	return asInt64(v)
}

// ErrorMessage returns the connector error recorded on a failed snapshot.
func (s Snapshot) ErrorMessage() string {
	msg, _ := s.Metadata["error_message"].(string)
	return msg
}

// ErrorCode returns the connector error code recorded on a failed snapshot.
func (s Snapshot) ErrorCode() string {
	code, _ := s.Metadata["error_code"].(string)
	return code
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// BaselineSummary aggregates the recent successful history of one source.
// It is derived on demand and never persisted. Pointer fields are nil when
// the history is too thin to define them.
type BaselineSummary struct {
	SnapshotCount           int
	RowCountMedian          *float64
	RowCountMin             *float64
	RowCountMax             *float64
	RowCountStddev          *float64
	ExpectedIntervalSeconds *float64
	OldestSnapshotAt        *time.Time
	NewestSnapshotAt        *time.Time
}

// PayloadFields returns the baseline block of the webhook payload. Undefined
// statistics are encoded as JSON null rather than omitted.
func (b *BaselineSummary) PayloadFields() map[string]any {
	opt := func(v *float64) any {
		if v == nil {
			return nil
		}
		return *v
	}
	return map[string]any{
		"snapshot_count":            b.SnapshotCount,
		"row_count_median":          opt(b.RowCountMedian),
		"row_count_min":             opt(b.RowCountMin),
		"row_count_max":             opt(b.RowCountMax),
		"row_count_stddev":          opt(b.RowCountStddev),
		"expected_interval_seconds": opt(b.ExpectedIntervalSeconds),
	}
}

// Reason explains one contributing cause of a non-OK decision.
type Reason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decision is the outcome of evaluating one snapshot against its baseline.
type Decision struct {
	Status     Status
	Reasons    []Reason
	Metrics    map[string]any
	Baseline   *BaselineSummary
	Confidence float64
}

// ReasonCodes returns the reason codes in emission order.
func (d Decision) ReasonCodes() []string {
	codes := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		codes[i] = r.Code
	}
	return codes
}

// ReasonHash fingerprints the decision for alert deduplication: the first 16
// hex characters of the SHA-256 of {"reason_codes": sorted codes, "status":
// status} in canonical JSON. Message text is deliberately excluded so that
// rewording a message never re-fires an alert.
func (d Decision) ReasonHash() string {
	codes := d.ReasonCodes()
	sort.Strings(codes)
	doc, _ := json.Marshal(map[string]any{
		"reason_codes": codes,
		"status":       string(d.Status),
	})
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}

// PayloadFields returns the decision block of the webhook payload.
func (d Decision) PayloadFields() map[string]any {
	reasons := make([]Reason, 0, len(d.Reasons))
	reasons = append(reasons, d.Reasons...)
	return map[string]any{
		"status":     string(d.Status),
		"reasons":    reasons,
		"confidence": d.Confidence,
	}
}

// AlertState is the last notified condition for one (source, target) pair.
// The zero value (status UNKNOWN is synthesized by callers) always allows
// the first qualifying alert through.
type AlertState struct {
	SourceName         string
	TargetName         string
	NotifiedStatus     Status
	NotifiedReasonHash string
	LastChangeAt       time.Time
	LastSentAt         *time.Time
	CooldownUntil      *time.Time
}

// ShouldAlert reports whether a decision must be dispatched given this
// state. Cooldown is checked first and suppresses every dispatch, including
// status changes; afterwards a decision is suppressed only when both status
// and reason hash match what was last notified.
func (a AlertState) ShouldAlert(d Decision, now time.Time) bool {
	if a.CooldownUntil != nil && now.Before(*a.CooldownUntil) {
		return false
	}
	return a.NotifiedStatus != d.Status || a.NotifiedReasonHash != d.ReasonHash()
}

// DeliveryResult is the outcome of one webhook dispatch, recorded in the
// delivery log whether or not it succeeded.
type DeliveryResult struct {
	Success    bool
	StatusCode int // last HTTP status received, 0 when none
	Error      string
	LatencyMS  int64
	Attempts   int
}
