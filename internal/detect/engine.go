package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/pkg/types"
)

// minBaselineSamples is the history size below which the deviation checks
// stay silent: two snapshots are not a baseline.
const minBaselineSamples = 3

// criticalReasons escalate a decision to ANOMALY. Every other code in the
// closed reason set yields a WARNING.
var criticalReasons = map[string]bool{
	types.ReasonCollectFailed:  true,
	types.ReasonZeroVolume:     true,
	types.ReasonBelowMinVolume: true,
	types.ReasonStaleData:      true,
	types.ReasonSchemaDrift:    true,
}

// Engine evaluates snapshots against their source's recent history.
type Engine struct {
	now func() time.Time // injectable for deterministic tests
}

// NewEngine returns an Engine using the wall clock.
func NewEngine() *Engine { return &Engine{now: time.Now} }

// Analyze produces the decision for the current snapshot. history must hold
// only SUCCESS snapshots, most recent first, and must not include the
// current snapshot itself.
func (e *Engine) Analyze(current types.Snapshot, history []types.Snapshot, src config.Source) types.Decision {
	if !current.IsSuccess() {
		msg := current.ErrorMessage()
		if msg == "" {
			msg = "Unknown error"
		}
		return types.Decision{
			Status: types.StatusAnomaly,
			Reasons: []types.Reason{{
				Code:    types.ReasonCollectFailed,
				Message: "Failed to collect data: " + msg,
			}},
			Metrics:    current.Metrics,
			Confidence: 1.0,
		}
	}

	baseline := Baseline(history)

	var reasons []types.Reason
	reasons = append(reasons, e.freshnessReasons(current, history, baseline, src)...)
	reasons = append(reasons, volumeReasons(current, baseline, src)...)
	reasons = append(reasons, schemaReasons(current, history, src)...)

	return types.Decision{
		Status:     classify(reasons),
		Reasons:    reasons,
		Metrics:    current.Metrics,
		Baseline:   &baseline,
		Confidence: confidence(baseline.SnapshotCount),
	}
}

func (e *Engine) freshnessReasons(current types.Snapshot, history []types.Snapshot, baseline types.BaselineSummary, src config.Source) []types.Reason {
	var reasons []types.Reason

	if src.Freshness.MaxAgeHours != nil {
		if latest, ok := current.LatestTimestamp(); ok {
			age := e.now().Sub(latest).Hours()
			if age > *src.Freshness.MaxAgeHours {
				reasons = append(reasons, types.Reason{
					Code: types.ReasonStaleData,
					Message: fmt.Sprintf("Data is %.1fh old, exceeds max age of %gh",
						age, *src.Freshness.MaxAgeHours),
				})
			}
		}
	}

	if baseline.ExpectedIntervalSeconds != nil && *baseline.ExpectedIntervalSeconds > 0 && len(history) > 0 {
		gap := current.CollectedAt.Sub(history[0].CollectedAt).Seconds()
		allowed := *baseline.ExpectedIntervalSeconds * src.Freshness.Factor
		if gap > allowed {
			reasons = append(reasons, types.Reason{
				Code: types.ReasonCollectionGap,
				Message: fmt.Sprintf("Gap since last collection: %.1fh, expected max: %.1fh",
					gap/3600, allowed/3600),
			})
		}
	}

	if latest, ok := current.LatestTimestamp(); ok {
		if prior, ok := newestPriorTimestamp(history); ok && !latest.After(prior) {
			reasons = append(reasons, types.Reason{
				Code:    types.ReasonNoNewData,
				Message: "No new data since " + prior.UTC().Format(time.RFC3339),
			})
		}
	}
	return reasons
}

// newestPriorTimestamp returns the maximum latest_timestamp across history.
func newestPriorTimestamp(history []types.Snapshot) (time.Time, bool) {
	var newest time.Time
	var found bool
	for _, snap := range history {
		if ts, ok := snap.LatestTimestamp(); ok && (!found || ts.After(newest)) {
			newest = ts
			found = true
		}
	}
	return newest, found
}

func volumeReasons(current types.Snapshot, baseline types.BaselineSummary, src config.Source) []types.Reason {
	count, ok := current.RowCount()
	if !ok {
		return nil
	}
	var reasons []types.Reason

	if src.Volume.MinRowCount != nil && count < *src.Volume.MinRowCount {
		reasons = append(reasons, types.Reason{
			Code: types.ReasonBelowMinVolume,
			Message: fmt.Sprintf("Row count %d is below minimum threshold of %d",
				count, *src.Volume.MinRowCount),
		})
	}

	if baseline.RowCountMedian == nil || baseline.SnapshotCount < minBaselineSamples {
		return reasons
	}
	median := *baseline.RowCountMedian
	var stddev float64
	if baseline.RowCountStddev != nil {
		stddev = *baseline.RowCountStddev
	}

	switch {
	case stddev > 0:
		z := math.Abs(float64(count)-median) / stddev
		if z > src.Volume.DeviationFactor {
			var pct float64
			if median != 0 {
				pct = math.Abs(float64(count)-median) / median * 100
			}
			code, direction := types.ReasonVolumeHigh, "above"
			if float64(count) < median {
				code, direction = types.ReasonVolumeLow, "below"
			}
			reasons = append(reasons, types.Reason{
				Code: code,
				Message: fmt.Sprintf("Row count %d is %.1f%% %s baseline median (%.0f)",
					count, pct, direction, median),
			})
		}
	case count == 0 && median > 0:
		// A flat baseline gives stddev 0, which makes the z-score useless;
		// a sudden zero is still a hard anomaly.
		reasons = append(reasons, types.Reason{
			Code:    types.ReasonZeroVolume,
			Message: fmt.Sprintf("Row count is 0, baseline median is %.0f", median),
		})
	}
	return reasons
}

func schemaReasons(current types.Snapshot, history []types.Snapshot, src config.Source) []types.Reason {
	if !src.SchemaDriftEnabled() {
		return nil
	}
	currentSchema := current.Schema()
	if len(currentSchema) == 0 {
		return nil
	}

	// Compare against the most recent snapshot that recorded a schema.
	var prior []types.SchemaColumn
	for _, snap := range history {
		if cols := snap.Schema(); len(cols) > 0 {
			prior = cols
			break
		}
	}
	if prior == nil {
		return nil
	}

	if msg, changed := diffSchemas(prior, currentSchema); changed {
		return []types.Reason{{Code: types.ReasonSchemaDrift, Message: msg}}
	}
	return nil
}

// diffSchemas compares schemas as name→type maps; column order is not drift.
func diffSchemas(prior, current []types.SchemaColumn) (string, bool) {
	prev := make(map[string]string, len(prior))
	for _, c := range prior {
		prev[c.Name] = c.Type
	}
	cur := make(map[string]string, len(current))
	for _, c := range current {
		cur[c.Name] = c.Type
	}

	var added, removed, changed []string
	for name := range cur {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	for name, typ := range prev {
		curType, ok := cur[name]
		if !ok {
			removed = append(removed, name)
		} else if curType != typ {
			changed = append(changed, name)
		}
	}
	if len(added)+len(removed)+len(changed) == 0 {
		return "", false
	}

	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)

	var groups []string
	if len(added) > 0 {
		groups = append(groups, "added: "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		groups = append(groups, "removed: "+strings.Join(removed, ", "))
	}
	if len(changed) > 0 {
		groups = append(groups, "changed: "+strings.Join(changed, ", "))
	}
	return "Schema changed (" + strings.Join(groups, "; ") + ")", true
}

func classify(reasons []types.Reason) types.Status {
	if len(reasons) == 0 {
		return types.StatusOK
	}
	for _, r := range reasons {
		if criticalReasons[r.Code] {
			return types.StatusAnomaly
		}
	}
	return types.StatusWarning
}

// confidence grows stepwise with the amount of history backing the decision.
func confidence(snapshotCount int) float64 {
	switch {
	case snapshotCount == 0:
		return 0.0
	case snapshotCount < 3:
		return 0.3
	case snapshotCount < 10:
		return 0.6
	case snapshotCount < 20:
		return 0.8
	default:
		return 0.95
	}
}
