package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/driftguard/driftguard/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func successSnapshot(source string, at time.Time, rowCount int64) types.Snapshot {
	return types.Snapshot{
		SourceName:    source,
		CollectedAt:   at,
		CollectStatus: types.CollectSuccess,
		Metrics:       map[string]any{"row_count": rowCount},
		Metadata:      map[string]any{"connector_type": "sql"},
	}
}

func TestAppendAndLastSnapshot(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert the newer snapshot first: ordering must come from collected_at,
	// not from insertion order.
	id2, err := s.AppendSnapshot(successSnapshot("orders", base.Add(time.Hour), 1050))
	if err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}
	id1, err := s.AppendSnapshot(successSnapshot("orders", base, 1000))
	if err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}
	if id1 <= id2 {
		t.Errorf("ids not monotonic: %d then %d", id2, id1)
	}

	last, err := s.LastSnapshot("orders")
	if err != nil {
		t.Fatalf("LastSnapshot() error: %v", err)
	}
	if last == nil {
		t.Fatal("LastSnapshot() = nil, want snapshot")
	}
	if !last.CollectedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("LastSnapshot().CollectedAt = %v, want %v", last.CollectedAt, base.Add(time.Hour))
	}
	if rc, ok := last.RowCount(); !ok || rc != 1050 {
		t.Errorf("RowCount() = (%d, %v), want (1050, true)", rc, ok)
	}
	if last.ID != id2 {
		t.Errorf("LastSnapshot().ID = %d, want %d", last.ID, id2)
	}
}

func TestLastSnapshotEmpty(t *testing.T) {
	s := newTestStore(t)
	last, err := s.LastSnapshot("never-checked")
	if err != nil {
		t.Fatalf("LastSnapshot() error: %v", err)
	}
	if last != nil {
		t.Errorf("LastSnapshot() = %+v, want nil", last)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	latest := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)

	snap := types.Snapshot{
		SourceName:    "orders",
		CollectedAt:   at,
		CollectStatus: types.CollectSuccess,
		Metrics: map[string]any{
			"row_count":        int64(1200),
			"latest_timestamp": latest.Format(time.RFC3339Nano),
			"avg_amount":       12.5,
		},
		Metadata: map[string]any{
			"connector_type": "sql",
			"dialect":        "postgres",
			"duration_ms":    int64(42),
			"schema": []types.SchemaColumn{
				{Name: "row_count", Type: "INTEGER"},
			},
		},
	}
	if _, err := s.AppendSnapshot(snap); err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}

	got, err := s.LastSnapshot("orders")
	if err != nil {
		t.Fatalf("LastSnapshot() error: %v", err)
	}
	if !got.CollectedAt.Equal(at) {
		t.Errorf("CollectedAt = %v, want %v (nanoseconds must survive)", got.CollectedAt, at)
	}
	if rc, ok := got.RowCount(); !ok || rc != 1200 {
		t.Errorf("RowCount() = (%d, %v)", rc, ok)
	}
	if ts, ok := got.LatestTimestamp(); !ok || !ts.Equal(latest) {
		t.Errorf("LatestTimestamp() = (%v, %v)", ts, ok)
	}
	if got.Metrics["avg_amount"] != 12.5 {
		t.Errorf("avg_amount = %v", got.Metrics["avg_amount"])
	}
	if d, ok := got.DurationMS(); !ok || d != 42 {
		t.Errorf("DurationMS() = (%d, %v)", d, ok)
	}
	cols := got.Schema()
	if len(cols) != 1 || cols[0].Name != "row_count" {
		t.Errorf("Schema() = %v", cols)
	}
}

func TestFailedSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	snap := types.Snapshot{
		SourceName:    "orders",
		CollectedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CollectStatus: types.CollectFailed,
		Metrics:       map[string]any{},
		Metadata: map[string]any{
			"error_code":    "CONNECTION_ERROR",
			"error_message": "dial tcp: connection refused",
		},
	}
	if _, err := s.AppendSnapshot(snap); err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}

	got, err := s.LastSnapshot("orders")
	if err != nil {
		t.Fatalf("LastSnapshot() error: %v", err)
	}
	if got.IsSuccess() {
		t.Error("IsSuccess() = true for failed snapshot")
	}
	if got.ErrorCode() != "CONNECTION_ERROR" || got.ErrorMessage() == "" {
		t.Errorf("error fields = %q / %q", got.ErrorCode(), got.ErrorMessage())
	}
	if len(got.Metrics) != 0 {
		t.Errorf("Metrics = %v, want empty", got.Metrics)
	}
}

func TestListSnapshots(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		snap := successSnapshot("orders", now.Add(-time.Duration(i)*24*time.Hour), int64(1000+i))
		if _, err := s.AppendSnapshot(snap); err != nil {
			t.Fatalf("AppendSnapshot() error: %v", err)
		}
	}
	failed := types.Snapshot{
		SourceName:    "orders",
		CollectedAt:   now.Add(-12 * time.Hour),
		CollectStatus: types.CollectFailed,
		Metadata:      map[string]any{"error_code": "QUERY_ERROR", "error_message": "x"},
	}
	if _, err := s.AppendSnapshot(failed); err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}
	// Other sources must not leak in.
	if _, err := s.AppendSnapshot(successSnapshot("users", now, 5)); err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}

	t.Run("success only", func(t *testing.T) {
		got, err := s.ListSnapshots("orders", 100, 30, true)
		if err != nil {
			t.Fatalf("ListSnapshots() error: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("len = %d, want 5", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].CollectedAt.After(got[i-1].CollectedAt) {
				t.Error("snapshots not in most-recent-first order")
			}
		}
	})

	t.Run("all statuses", func(t *testing.T) {
		got, err := s.ListSnapshots("orders", 100, 30, false)
		if err != nil {
			t.Fatalf("ListSnapshots() error: %v", err)
		}
		if len(got) != 6 {
			t.Errorf("len = %d, want 6", len(got))
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.ListSnapshots("orders", 2, 30, true)
		if err != nil {
			t.Fatalf("ListSnapshots() error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if rc, _ := got[0].RowCount(); rc != 1000 {
			t.Errorf("newest row_count = %d, want 1000", rc)
		}
	})

	t.Run("age cutoff", func(t *testing.T) {
		got, err := s.ListSnapshots("orders", 100, 2, true)
		if err != nil {
			t.Fatalf("ListSnapshots() error: %v", err)
		}
		// Offsets 0, 1 and 2 days survive a 2-day cutoff (boundary inclusive).
		if len(got) != 3 {
			t.Errorf("len = %d, want 3", len(got))
		}
	})
}

func TestListSnapshotsInsertOrderBreaksTies(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// Two snapshots sharing one collected_at: the later insert must sort
	// first so a freshly appended row is never pushed out of a window by
	// an older tie.
	first, err := s.AppendSnapshot(successSnapshot("orders", now, 100))
	if err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}
	second, err := s.AppendSnapshot(successSnapshot("orders", now, 200))
	if err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}

	got, err := s.ListSnapshots("orders", 10, 30, true)
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != second || got[1].ID != first {
		t.Errorf("order = [%d, %d], want [%d, %d]", got[0].ID, got[1].ID, second, first)
	}

	last, err := s.LastSnapshot("orders")
	if err != nil {
		t.Fatalf("LastSnapshot() error: %v", err)
	}
	if last.ID != second {
		t.Errorf("LastSnapshot().ID = %d, want %d", last.ID, second)
	}
}

func TestAlertStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	got, err := s.AlertState("orders", "ops")
	if err != nil {
		t.Fatalf("AlertState() error: %v", err)
	}
	if got != nil {
		t.Fatalf("AlertState() = %+v, want nil for unknown pair", got)
	}

	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cooldown := sent.Add(time.Hour)
	st := types.AlertState{
		SourceName:         "orders",
		TargetName:         "ops",
		NotifiedStatus:     types.StatusAnomaly,
		NotifiedReasonHash: "abc123",
		LastChangeAt:       sent,
		LastSentAt:         &sent,
		CooldownUntil:      &cooldown,
	}
	if err := s.SetAlertState(st); err != nil {
		t.Fatalf("SetAlertState() error: %v", err)
	}

	got, err = s.AlertState("orders", "ops")
	if err != nil {
		t.Fatalf("AlertState() error: %v", err)
	}
	if got.NotifiedStatus != types.StatusAnomaly || got.NotifiedReasonHash != "abc123" {
		t.Errorf("state = %+v", got)
	}
	if got.LastSentAt == nil || !got.LastSentAt.Equal(sent) {
		t.Errorf("LastSentAt = %v", got.LastSentAt)
	}
	if got.CooldownUntil == nil || !got.CooldownUntil.Equal(cooldown) {
		t.Errorf("CooldownUntil = %v", got.CooldownUntil)
	}

	// Upsert overwrites in place.
	st.NotifiedStatus = types.StatusOK
	st.CooldownUntil = nil
	if err := s.SetAlertState(st); err != nil {
		t.Fatalf("SetAlertState() error: %v", err)
	}
	got, err = s.AlertState("orders", "ops")
	if err != nil {
		t.Fatalf("AlertState() error: %v", err)
	}
	if got.NotifiedStatus != types.StatusOK {
		t.Errorf("NotifiedStatus = %q after upsert", got.NotifiedStatus)
	}
	if got.CooldownUntil != nil {
		t.Errorf("CooldownUntil = %v, want nil after upsert", got.CooldownUntil)
	}
}

func TestLogDelivery(t *testing.T) {
	s := newTestStore(t)
	res := types.DeliveryResult{
		Success:    false,
		StatusCode: 503,
		Error:      "webhook returned HTTP 503",
		LatencyMS:  2150,
		Attempts:   4,
	}
	if err := s.LogDelivery("orders", "ops", "anomaly", "deadbeefdeadbeef", res); err != nil {
		t.Fatalf("LogDelivery() error: %v", err)
	}

	var (
		success, statusCode, attempts int
		errMsg                        string
	)
	err := s.db.QueryRow(`
		SELECT success, status_code, error_message, attempts
		FROM deliveries WHERE source_name = 'orders'`,
	).Scan(&success, &statusCode, &errMsg, &attempts)
	if err != nil {
		t.Fatalf("read back delivery: %v", err)
	}
	if success != 0 || statusCode != 503 || attempts != 4 {
		t.Errorf("row = success %d, status %d, attempts %d", success, statusCode, attempts)
	}
	if errMsg != "webhook returned HTTP 503" {
		t.Errorf("error_message = %q", errMsg)
	}
}

func TestPurgeRetention(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// 50 daily snapshots, offsets 1..50 days.
	for i := 1; i <= 50; i++ {
		snap := successSnapshot("orders", now.AddDate(0, 0, -i), int64(i))
		if _, err := s.AppendSnapshot(snap); err != nil {
			t.Fatalf("AppendSnapshot() error: %v", err)
		}
	}
	// A small source entirely older than the cutoff stays untouched.
	for i := 40; i < 45; i++ {
		snap := successSnapshot("tiny", now.AddDate(0, 0, -i), int64(i))
		if _, err := s.AppendSnapshot(snap); err != nil {
			t.Fatalf("AppendSnapshot() error: %v", err)
		}
	}
	// One delivery too old, one recent.
	s.now = func() time.Time { return now.AddDate(0, 0, -45) }
	if err := s.LogDelivery("orders", "ops", "anomaly", "aaaa", types.DeliveryResult{Success: true}); err != nil {
		t.Fatalf("LogDelivery() error: %v", err)
	}
	s.now = func() time.Time { return now }
	if err := s.LogDelivery("orders", "ops", "recovery", "bbbb", types.DeliveryResult{Success: true}); err != nil {
		t.Fatalf("LogDelivery() error: %v", err)
	}

	deleted, err := s.PurgeRetention(30, 10)
	if err != nil {
		t.Fatalf("PurgeRetention() error: %v", err)
	}
	// orders: offsets 31..50 are past the cutoff (20 rows), none protected
	// since the newest 10 are offsets 1..10. Plus one old delivery.
	if deleted != 21 {
		t.Errorf("deleted = %d, want 21", deleted)
	}

	orders, err := s.ListSnapshots("orders", 100, 365, false)
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if len(orders) != 30 {
		t.Errorf("orders snapshots remaining = %d, want 30", len(orders))
	}

	tiny, err := s.ListSnapshots("tiny", 100, 365, false)
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if len(tiny) != 5 {
		t.Errorf("tiny snapshots remaining = %d, want 5 (below min_keep)", len(tiny))
	}

	var deliveries int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&deliveries); err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if deliveries != 1 {
		t.Errorf("deliveries remaining = %d, want 1", deliveries)
	}
}

func TestPurgeProtectsNewestEvenWhenOld(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// 12 snapshots, all far older than the cutoff. The newest 10 must survive.
	for i := 100; i < 112; i++ {
		snap := successSnapshot("cold", now.AddDate(0, 0, -i), int64(i))
		if _, err := s.AppendSnapshot(snap); err != nil {
			t.Fatalf("AppendSnapshot() error: %v", err)
		}
	}

	deleted, err := s.PurgeRetention(30, 10)
	if err != nil {
		t.Fatalf("PurgeRetention() error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	remaining, err := s.ListSnapshots("cold", 100, 365, false)
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if len(remaining) != 10 {
		t.Errorf("remaining = %d, want 10", len(remaining))
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", v, schemaVersion)
	}
	if err := s.Migrate(); err != nil {
		t.Errorf("second Migrate() error: %v", err)
	}
	if _, err := s.AppendSnapshot(successSnapshot("orders", time.Now().UTC(), 1)); err != nil {
		t.Fatalf("AppendSnapshot() error: %v", err)
	}
	s.Close()

	// Reopening an existing database must keep its rows.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()
	last, err := s2.LastSnapshot("orders")
	if err != nil {
		t.Fatalf("LastSnapshot() error: %v", err)
	}
	if last == nil {
		t.Error("rows lost across reopen")
	}
}

func TestRefusesNewerSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO schema_meta (version, applied_at) VALUES (?, ?)`,
		schemaVersion+1, formatTime(time.Now()),
	); err != nil {
		t.Fatalf("seed future version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() accepted a database from a newer build")
	}
}

func TestHealthcheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.Healthcheck(); err != nil {
		t.Errorf("Healthcheck() error: %v", err)
	}
	s.Close()
	if err := s.Healthcheck(); err == nil {
		t.Error("Healthcheck() passed on a closed store")
	}
}

func TestTimeFormatOrdering(t *testing.T) {
	// Fixed-width encoding is what makes string comparison in SQL safe.
	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
		time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		a, b := formatTime(times[i-1]), formatTime(times[i])
		if len(a) != len(b) {
			t.Errorf("widths differ: %q vs %q", a, b)
		}
		if !(a < b) {
			t.Errorf("string order broken: %q >= %q", a, b)
		}
	}

	// And it must parse back losslessly.
	for _, ts := range times {
		back, err := parseTime(formatTime(ts))
		if err != nil {
			t.Fatalf("parseTime() error: %v", err)
		}
		if !back.Equal(ts) {
			t.Errorf("round trip changed %v to %v", ts, back)
		}
	}
}
