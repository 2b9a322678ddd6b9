// Package types defines the shared domain types used across the agent:
// snapshots, baseline summaries, drift decisions, alert state, and the
// outbound webhook payload with its canonical JSON encoding.
package types
