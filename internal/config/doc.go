// Package config loads and validates the driftguard.yaml configuration file.
//
// Top-level types:
//   - Config{Version, Agent, Storage, Sources, Alerting, Retention, Baseline}
//     — full config tree parsed from YAML
//   - Source — name, type (sql|http), dialect, connection, query, schedule,
//     freshness/volume thresholds, schema_drift and enabled toggles
//   - Webhook — name, url, optional HMAC secret, event filter, timeout
//
// Load(path) reads the YAML file, applies defaults (15-minute schedule,
// freshness factor 2.0, deviation factor 3.0, 60-minute cooldown, 30-day
// retention), then validates required fields and enums. Connection strings
// with literal user:password credentials are rejected; ${NAME} references
// are resolved against the environment at use time via ResolveEnv and
// ResolveString, so secrets never live in the file.
//
// Watch(ctx, path) uses fsnotify to report on-disk changes. The agent reads
// configuration once at startup; a change notification only tells the
// operator to restart.
package config
