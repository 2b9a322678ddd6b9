// Package store persists snapshots, alert state, and the delivery log in a
// single SQLite file (modernc.org/sqlite, no cgo).
//
// The agent is the only writer; Open configures one connection with WAL
// journaling and a 5s busy timeout. Timestamps are stored as fixed-width
// RFC 3339 UTC strings with nanoseconds, so lexicographic comparison in SQL
// equals chronological comparison.
//
// Snapshots keep their full metrics/metadata maps as JSON columns; row
// count, latest timestamp, duration, and error fields are additionally
// denormalized into plain columns for ad-hoc inspection with the sqlite3
// shell.
//
// The schema carries a version in schema_meta. Migrate is idempotent and
// refuses to touch a database written by a newer build.
package store
