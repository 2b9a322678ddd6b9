// Package detect derives drift decisions from snapshots.
//
// baseline.go provides the pure Baseline(history) function that summarizes a
// window of successful snapshots: row-count median/min/max, sample standard
// deviation, and the median gap between collections (the learned interval).
//
// engine.go provides the Engine whose Analyze(current, history, source)
// applies the freshness, volume, and schema checks in order and classifies
// the result: any critical reason (COLLECT_FAILED, ZERO_VOLUME,
// BELOW_MIN_VOLUME, STALE_DATA, SCHEMA_DRIFT) makes the decision ANOMALY,
// any remaining reason makes it WARNING, none makes it OK. Confidence grows
// stepwise with history size: 0 → 0.0, <3 → 0.3, <10 → 0.6, <20 → 0.8,
// otherwise 0.95. Engine.now is injectable so tests are deterministic.
package detect
