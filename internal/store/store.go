package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driftguard/driftguard/pkg/types"
)

// schemaVersion is the schema generation this build writes and understands.
const schemaVersion = 1

// timeFormat is fixed-width RFC 3339 UTC with nanoseconds: string order in
// SQL equals time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    source_name      TEXT NOT NULL,
    collected_at     TEXT NOT NULL,
    collect_status   TEXT NOT NULL,
    row_count        INTEGER,
    latest_timestamp TEXT,
    metrics_json     TEXT NOT NULL DEFAULT '{}',
    metadata_json    TEXT NOT NULL DEFAULT '{}',
    duration_ms      INTEGER,
    error_code       TEXT,
    error_message    TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_source_time
    ON snapshots (source_name, collected_at DESC);

CREATE INDEX IF NOT EXISTS idx_snapshots_source_status_time
    ON snapshots (source_name, collect_status, collected_at DESC);

CREATE TABLE IF NOT EXISTS alert_state (
    source_name          TEXT NOT NULL,
    target_name          TEXT NOT NULL,
    notified_status      TEXT NOT NULL,
    notified_reason_hash TEXT NOT NULL DEFAULT '',
    last_change_at       TEXT NOT NULL,
    last_sent_at         TEXT,
    cooldown_until       TEXT,
    PRIMARY KEY (source_name, target_name)
);

CREATE TABLE IF NOT EXISTS deliveries (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    source_name   TEXT NOT NULL,
    target_name   TEXT NOT NULL,
    event_type    TEXT NOT NULL,
    payload_hash  TEXT NOT NULL,
    sent_at       TEXT NOT NULL,
    success       INTEGER NOT NULL,
    status_code   INTEGER,
    latency_ms    INTEGER,
    error_message TEXT,
    attempts      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_deliveries_source_time
    ON deliveries (source_name, sent_at DESC);

CREATE TABLE IF NOT EXISTS schema_meta (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// Store is the single-writer state database.
type Store struct {
	db  *sql.DB
	now func() time.Time // injectable for deterministic tests
}

// Open opens (creating when necessary) the SQLite database at path and
// brings its schema up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The agent is the single writer; one connection sidesteps SQLITE_BUSY
	// between overlapping statements.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate brings the schema up to the version this build writes. It is
// idempotent and fails when the database was written by a newer build.
func (s *Store) Migrate() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("store: database schema version %d is newer than this build supports (%d)", current, schemaVersion)
	}
	if current == schemaVersion {
		return nil
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO schema_meta (version, applied_at) VALUES (?, ?)`,
		schemaVersion, formatTime(s.now()),
	); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}

// SchemaVersion returns the stored schema version, 0 for a fresh database.
func (s *Store) SchemaVersion() (int, error) {
	var name string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_meta'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: schema version: %w", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_meta`).Scan(&version); err != nil {
		return 0, fmt.Errorf("store: schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Healthcheck verifies the database still answers queries.
func (s *Store) Healthcheck() error {
	var one int
	if err := s.db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store: healthcheck: %w", err)
	}
	return nil
}

// AppendSnapshot inserts a snapshot and returns its store-assigned id.
func (s *Store) AppendSnapshot(snap types.Snapshot) (int64, error) {
	metrics, err := json.Marshal(emptyIfNil(snap.Metrics))
	if err != nil {
		return 0, fmt.Errorf("store: encode metrics: %w", err)
	}
	metadata, err := json.Marshal(emptyIfNil(snap.Metadata))
	if err != nil {
		return 0, fmt.Errorf("store: encode metadata: %w", err)
	}

	var rowCount, latest, durationMS, errCode, errMsg any
	if v, ok := snap.RowCount(); ok {
		rowCount = v
	}
	if ts, ok := snap.LatestTimestamp(); ok {
		latest = formatTime(ts)
	}
	if v, ok := snap.DurationMS(); ok {
		durationMS = v
	}
	if v := snap.ErrorCode(); v != "" {
		errCode = v
	}
	if v := snap.ErrorMessage(); v != "" {
		errMsg = v
	}

	res, err := s.db.Exec(`
		INSERT INTO snapshots (source_name, collected_at, collect_status, row_count,
		                       latest_timestamp, metrics_json, metadata_json,
		                       duration_ms, error_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SourceName, formatTime(snap.CollectedAt), string(snap.CollectStatus),
		rowCount, latest, string(metrics), string(metadata), durationMS, errCode, errMsg)
	if err != nil {
		return 0, fmt.Errorf("store: append snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: append snapshot: %w", err)
	}
	return id, nil
}

const snapshotCols = `id, source_name, collected_at, collect_status, metrics_json, metadata_json`

// LastSnapshot returns the most recent snapshot for source, or nil when the
// source has never been checked.
func (s *Store) LastSnapshot(source string) (*types.Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT `+snapshotCols+` FROM snapshots
		WHERE source_name = ?
		ORDER BY collected_at DESC, id DESC LIMIT 1`, source)

	snap, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: last snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns up to limit snapshots for source, most recent first,
// no older than maxAgeDays. With successOnly, failed collections are
// excluded.
func (s *Store) ListSnapshots(source string, limit, maxAgeDays int, successOnly bool) ([]types.Snapshot, error) {
	cutoff := formatTime(s.now().AddDate(0, 0, -maxAgeDays))

	q := `SELECT ` + snapshotCols + ` FROM snapshots WHERE source_name = ? AND collected_at >= ?`
	args := []any{source, cutoff}
	if successOnly {
		q += ` AND collect_status = ?`
		args = append(args, string(types.CollectSuccess))
	}
	// id breaks collected_at ties so the newest insert always sorts first.
	q += ` ORDER BY collected_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: list snapshots: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	return out, nil
}

// AlertState returns the stored state for (source, target), or nil when this
// pair has never been notified.
func (s *Store) AlertState(source, target string) (*types.AlertState, error) {
	row := s.db.QueryRow(`
		SELECT notified_status, notified_reason_hash, last_change_at, last_sent_at, cooldown_until
		FROM alert_state WHERE source_name = ? AND target_name = ?`, source, target)

	st := types.AlertState{SourceName: source, TargetName: target}
	var status, lastChange string
	var lastSent, cooldown sql.NullString

	err := row.Scan(&status, &st.NotifiedReasonHash, &lastChange, &lastSent, &cooldown)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: alert state: %w", err)
	}

	st.NotifiedStatus = types.Status(status)
	if st.LastChangeAt, err = parseTime(lastChange); err != nil {
		return nil, fmt.Errorf("store: alert state: %w", err)
	}
	if lastSent.Valid {
		t, err := parseTime(lastSent.String)
		if err != nil {
			return nil, fmt.Errorf("store: alert state: %w", err)
		}
		st.LastSentAt = &t
	}
	if cooldown.Valid {
		t, err := parseTime(cooldown.String)
		if err != nil {
			return nil, fmt.Errorf("store: alert state: %w", err)
		}
		st.CooldownUntil = &t
	}
	return &st, nil
}

// SetAlertState upserts the state for its (source, target) pair.
func (s *Store) SetAlertState(st types.AlertState) error {
	_, err := s.db.Exec(`
		INSERT INTO alert_state (source_name, target_name, notified_status,
		                         notified_reason_hash, last_change_at, last_sent_at, cooldown_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_name, target_name) DO UPDATE SET
			notified_status      = excluded.notified_status,
			notified_reason_hash = excluded.notified_reason_hash,
			last_change_at       = excluded.last_change_at,
			last_sent_at         = excluded.last_sent_at,
			cooldown_until       = excluded.cooldown_until`,
		st.SourceName, st.TargetName, string(st.NotifiedStatus), st.NotifiedReasonHash,
		formatTime(st.LastChangeAt), nullTime(st.LastSentAt), nullTime(st.CooldownUntil))
	if err != nil {
		return fmt.Errorf("store: set alert state: %w", err)
	}
	return nil
}

// LogDelivery records one dispatch attempt chain, successful or not.
func (s *Store) LogDelivery(source, target, eventType, payloadHash string, res types.DeliveryResult) error {
	success := 0
	if res.Success {
		success = 1
	}
	var statusCode, errMsg any
	if res.StatusCode != 0 {
		statusCode = res.StatusCode
	}
	if res.Error != "" {
		errMsg = res.Error
	}

	_, err := s.db.Exec(`
		INSERT INTO deliveries (source_name, target_name, event_type, payload_hash,
		                        sent_at, success, status_code, latency_ms, error_message, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		source, target, eventType, payloadHash, formatTime(s.now()),
		success, statusCode, res.LatencyMS, errMsg, res.Attempts)
	if err != nil {
		return fmt.Errorf("store: log delivery: %w", err)
	}
	return nil
}

// DeliveryRecord is one logged dispatch attempt chain read back from the
// delivery log.
type DeliveryRecord struct {
	SourceName  string
	TargetName  string
	EventType   string
	PayloadHash string
	SentAt      time.Time
	Result      types.DeliveryResult
}

// RecentDeliveries returns up to limit delivery log entries for source, most
// recent first.
func (s *Store) RecentDeliveries(source string, limit int) ([]DeliveryRecord, error) {
	rows, err := s.db.Query(`
		SELECT source_name, target_name, event_type, payload_hash, sent_at,
		       success, status_code, latency_ms, error_message, attempts
		FROM deliveries WHERE source_name = ?
		ORDER BY sent_at DESC LIMIT ?`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var (
			rec        DeliveryRecord
			sentAt     string
			success    int
			statusCode sql.NullInt64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&rec.SourceName, &rec.TargetName, &rec.EventType, &rec.PayloadHash,
			&sentAt, &success, &statusCode, &rec.Result.LatencyMS, &errMsg, &rec.Result.Attempts); err != nil {
			return nil, fmt.Errorf("store: recent deliveries: %w", err)
		}
		if rec.SentAt, err = parseTime(sentAt); err != nil {
			return nil, fmt.Errorf("store: recent deliveries: %w", err)
		}
		rec.Result.Success = success == 1
		rec.Result.StatusCode = int(statusCode.Int64)
		rec.Result.Error = errMsg.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent deliveries: %w", err)
	}
	return out, nil
}

// PurgeRetention deletes snapshots older than days, always keeping the
// newest minKeep per source, then deletes delivery log entries older than
// days. It returns the total number of rows removed.
func (s *Store) PurgeRetention(days, minKeep int) (int64, error) {
	cutoff := formatTime(s.now().AddDate(0, 0, -days))

	rows, err := s.db.Query(`SELECT DISTINCT source_name FROM snapshots`)
	if err != nil {
		return 0, fmt.Errorf("store: purge: %w", err)
	}
	var sources []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: purge: %w", err)
		}
		sources = append(sources, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("store: purge: %w", err)
	}

	var total int64
	for _, src := range sources {
		var n int
		if err := s.db.QueryRow(
			`SELECT COUNT(*) FROM snapshots WHERE source_name = ?`, src,
		).Scan(&n); err != nil {
			return total, fmt.Errorf("store: purge: %w", err)
		}
		if n <= minKeep {
			continue
		}

		res, err := s.db.Exec(`
			DELETE FROM snapshots
			WHERE source_name = ? AND collected_at < ?
			  AND id NOT IN (
			      SELECT id FROM snapshots
			      WHERE source_name = ?
			      ORDER BY collected_at DESC, id DESC LIMIT ?
			  )`, src, cutoff, src, minKeep)
		if err != nil {
			return total, fmt.Errorf("store: purge snapshots for %s: %w", src, err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("store: purge: %w", err)
		}
		total += deleted
	}

	res, err := s.db.Exec(`DELETE FROM deliveries WHERE sent_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("store: purge deliveries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return total, fmt.Errorf("store: purge: %w", err)
	}
	return total + deleted, nil
}

// CountPrunable reports how many rows PurgeRetention would delete with the
// same arguments, without deleting anything.
func (s *Store) CountPrunable(days, minKeep int) (int64, error) {
	cutoff := formatTime(s.now().AddDate(0, 0, -days))

	var snapshots int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM snapshots o
		WHERE o.collected_at < ?
		  AND o.id NOT IN (
		      SELECT id FROM snapshots
		      WHERE source_name = o.source_name
		      ORDER BY collected_at DESC, id DESC LIMIT ?
		  )`, cutoff, minKeep).Scan(&snapshots)
	if err != nil {
		return 0, fmt.Errorf("store: count prunable: %w", err)
	}

	var deliveries int64
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM deliveries WHERE sent_at < ?`, cutoff,
	).Scan(&deliveries); err != nil {
		return 0, fmt.Errorf("store: count prunable: %w", err)
	}
	return snapshots + deliveries, nil
}

func scanSnapshot(scan func(...any) error) (types.Snapshot, error) {
	var (
		snap              types.Snapshot
		collected, status string
		metrics, metadata string
	)
	if err := scan(&snap.ID, &snap.SourceName, &collected, &status, &metrics, &metadata); err != nil {
		return types.Snapshot{}, err
	}

	ts, err := parseTime(collected)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("corrupt collected_at %q: %w", collected, err)
	}
	snap.CollectedAt = ts
	snap.CollectStatus = types.CollectStatus(status)

	if err := json.Unmarshal([]byte(metrics), &snap.Metrics); err != nil {
		return types.Snapshot{}, fmt.Errorf("corrupt metrics_json: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &snap.Metadata); err != nil {
		return types.Snapshot{}, fmt.Errorf("corrupt metadata_json: %w", err)
	}
	return snap, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
