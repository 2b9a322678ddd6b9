// Package daemon runs the check loop.
//
// Each iteration walks the enabled sources sequentially: a source is due
// when its cron schedule has a fire time at or before now, anchored at the
// last stored snapshot (a source with no history is always due). A due
// source is collected, stored, analyzed against its success history and
// routed through the alerting pipeline. Failures in one source are logged
// and never abort the iteration.
//
// After an outage the anchor rule yields exactly one catch-up check, not a
// backfill of every missed fire time; historical gaps surface through the
// COLLECTION_GAP detection instead.
//
// The loop re-runs every minute and stops when its context is cancelled
// (the run command wires SIGINT/SIGTERM into that context); the current
// source finishes first, and the caller closes the store last. An optional
// HTTP endpoint serves /healthz and prometheus /metrics.
package daemon
