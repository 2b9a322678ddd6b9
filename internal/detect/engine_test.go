package detect

import (
	"strings"
	"testing"
	"time"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	e := NewEngine()
	e.now = func() time.Time { return testNow }
	return e
}

func testSource() config.Source {
	return config.Source{
		Name:       "orders",
		Type:       "sql",
		Dialect:    "postgres",
		Connection: "${DB}",
		Query:      "SELECT 1",
		Schedule:   "0 6 * * *",
		Freshness:  config.FreshnessConfig{Factor: 2.0},
		Volume:     config.VolumeConfig{DeviationFactor: 3.0},
	}
}

// dailyHistory builds n SUCCESS snapshots at 24h spacing ending a day before
// testNow, most recent first.
func dailyHistory(n int, rowCount int64) []types.Snapshot {
	out := make([]types.Snapshot, n)
	for i := 0; i < n; i++ {
		out[i] = snapAt(testNow.Add(-time.Duration(i+1)*24*time.Hour), rowCount)
	}
	return out
}

func dailyHistoryCounts(counts []int64) []types.Snapshot {
	out := make([]types.Snapshot, len(counts))
	for i, c := range counts {
		out[i] = snapAt(testNow.Add(-time.Duration(i+1)*24*time.Hour), c)
	}
	return out
}

func codes(d types.Decision) map[string]string {
	out := make(map[string]string, len(d.Reasons))
	for _, r := range d.Reasons {
		out[r.Code] = r.Message
	}
	return out
}

func TestAnalyzeCollectFailed(t *testing.T) {
	e := testEngine()
	failed := types.Snapshot{
		SourceName:    "orders",
		CollectedAt:   testNow,
		CollectStatus: types.CollectFailed,
		Metrics:       map[string]any{},
		Metadata: map[string]any{
			"error_code":    "CONNECTION_ERROR",
			"error_message": "dial tcp: connection refused",
		},
	}

	d := e.Analyze(failed, dailyHistory(5, 1000), testSource())

	if d.Status != types.StatusAnomaly {
		t.Errorf("Status = %q", d.Status)
	}
	if len(d.Reasons) != 1 || d.Reasons[0].Code != types.ReasonCollectFailed {
		t.Fatalf("Reasons = %+v", d.Reasons)
	}
	if d.Reasons[0].Message != "Failed to collect data: dial tcp: connection refused" {
		t.Errorf("Message = %q", d.Reasons[0].Message)
	}
	if d.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0: the failure itself is certain", d.Confidence)
	}
	if d.Baseline != nil {
		t.Errorf("Baseline = %+v, want nil", d.Baseline)
	}

	t.Run("no error message", func(t *testing.T) {
		bare := failed
		bare.Metadata = map[string]any{}
		d := e.Analyze(bare, nil, testSource())
		if d.Reasons[0].Message != "Failed to collect data: Unknown error" {
			t.Errorf("Message = %q", d.Reasons[0].Message)
		}
	})
}

func TestAnalyzeStableBaseline(t *testing.T) {
	e := testEngine()
	d := e.Analyze(snapAt(testNow, 1050), dailyHistory(10, 1000), testSource())

	if d.Status != types.StatusOK {
		t.Errorf("Status = %q, reasons %+v", d.Status, d.Reasons)
	}
	if len(d.Reasons) != 0 {
		t.Errorf("Reasons = %+v, want none", d.Reasons)
	}
	if d.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8 for 10 samples", d.Confidence)
	}
	if d.Baseline == nil || d.Baseline.SnapshotCount != 10 {
		t.Errorf("Baseline = %+v", d.Baseline)
	}
}

func TestAnalyzeDropoutAnomaly(t *testing.T) {
	e := testEngine()
	src := testSource()
	minRows := int64(50)
	src.Volume.MinRowCount = &minRows

	d := e.Analyze(snapAt(testNow, 0), dailyHistory(10, 1000), src)

	if d.Status != types.StatusAnomaly {
		t.Errorf("Status = %q", d.Status)
	}
	got := codes(d)
	if msg, ok := got[types.ReasonBelowMinVolume]; !ok {
		t.Errorf("missing BELOW_MIN_VOLUME in %v", got)
	} else if msg != "Row count 0 is below minimum threshold of 50" {
		t.Errorf("Message = %q", msg)
	}
	// A flat baseline has stddev 0, so the zero also trips ZERO_VOLUME.
	if msg, ok := got[types.ReasonZeroVolume]; !ok {
		t.Errorf("missing ZERO_VOLUME in %v", got)
	} else if msg != "Row count is 0, baseline median is 1000" {
		t.Errorf("Message = %q", msg)
	}
}

func TestAnalyzeStaleData(t *testing.T) {
	e := testEngine()
	src := testSource()
	maxAge := 24.0
	src.Freshness.MaxAgeHours = &maxAge

	current := snapAt(testNow, 1000)
	current.Metrics["latest_timestamp"] = testNow.Add(-48 * time.Hour)

	d := e.Analyze(current, dailyHistory(10, 1000), src)

	if d.Status != types.StatusAnomaly {
		t.Errorf("Status = %q", d.Status)
	}
	msg, ok := codes(d)[types.ReasonStaleData]
	if !ok {
		t.Fatalf("missing STALE_DATA in %+v", d.Reasons)
	}
	if msg != "Data is 48.0h old, exceeds max age of 24h" {
		t.Errorf("Message = %q", msg)
	}

	t.Run("fresh data passes", func(t *testing.T) {
		current := snapAt(testNow, 1000)
		current.Metrics["latest_timestamp"] = testNow.Add(-2 * time.Hour)
		d := e.Analyze(current, dailyHistory(10, 1000), src)
		if _, ok := codes(d)[types.ReasonStaleData]; ok {
			t.Error("STALE_DATA fired for fresh data")
		}
	})
}

func TestAnalyzeVolumeDeviation(t *testing.T) {
	e := testEngine()
	history := dailyHistoryCounts([]int64{1000, 1010, 990, 1000, 1005, 995, 1000, 1010, 990, 1000})

	t.Run("low", func(t *testing.T) {
		d := e.Analyze(snapAt(testNow, 800), history, testSource())
		if d.Status != types.StatusWarning {
			t.Errorf("Status = %q", d.Status)
		}
		msg, ok := codes(d)[types.ReasonVolumeLow]
		if !ok {
			t.Fatalf("missing VOLUME_LOW in %+v", d.Reasons)
		}
		if msg != "Row count 800 is 20.0% below baseline median (1000)" {
			t.Errorf("Message = %q", msg)
		}
	})

	t.Run("high", func(t *testing.T) {
		d := e.Analyze(snapAt(testNow, 1200), history, testSource())
		msg, ok := codes(d)[types.ReasonVolumeHigh]
		if !ok {
			t.Fatalf("missing VOLUME_HIGH in %+v", d.Reasons)
		}
		if msg != "Row count 1200 is 20.0% above baseline median (1000)" {
			t.Errorf("Message = %q", msg)
		}
	})

	t.Run("within band", func(t *testing.T) {
		d := e.Analyze(snapAt(testNow, 1005), history, testSource())
		if d.Status != types.StatusOK {
			t.Errorf("Status = %q, reasons %+v", d.Status, d.Reasons)
		}
	})
}

func TestAnalyzeVolumeNeedsBaseline(t *testing.T) {
	e := testEngine()
	// Two samples are below the minimum; even a zero must stay quiet.
	d := e.Analyze(snapAt(testNow, 0), dailyHistory(2, 1000), testSource())
	if d.Status != types.StatusOK {
		t.Errorf("Status = %q, reasons %+v", d.Status, d.Reasons)
	}
	if d.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want 0.3 for 2 samples", d.Confidence)
	}
}

func TestAnalyzeNoNewData(t *testing.T) {
	e := testEngine()
	latest := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)

	history := dailyHistory(5, 1000)
	for i := range history {
		history[i].Metrics["latest_timestamp"] = latest.Add(-time.Duration(i) * 24 * time.Hour)
	}

	t.Run("stuck", func(t *testing.T) {
		current := snapAt(testNow, 1000)
		current.Metrics["latest_timestamp"] = latest
		d := e.Analyze(current, history, testSource())

		if d.Status != types.StatusWarning {
			t.Errorf("Status = %q", d.Status)
		}
		msg, ok := codes(d)[types.ReasonNoNewData]
		if !ok {
			t.Fatalf("missing NO_NEW_DATA in %+v", d.Reasons)
		}
		if msg != "No new data since 2026-02-28T10:00:00Z" {
			t.Errorf("Message = %q", msg)
		}
	})

	t.Run("advancing", func(t *testing.T) {
		current := snapAt(testNow, 1000)
		current.Metrics["latest_timestamp"] = latest.Add(time.Hour)
		d := e.Analyze(current, history, testSource())
		if _, ok := codes(d)[types.ReasonNoNewData]; ok {
			t.Error("NO_NEW_DATA fired although the timestamp advanced")
		}
	})
}

func TestAnalyzeCollectionGap(t *testing.T) {
	e := testEngine()
	// Daily history that stopped three days ago.
	history := make([]types.Snapshot, 5)
	for i := range history {
		history[i] = snapAt(testNow.Add(-time.Duration(i+3)*24*time.Hour), 1000)
	}

	d := e.Analyze(snapAt(testNow, 1000), history, testSource())

	if d.Status != types.StatusWarning {
		t.Errorf("Status = %q, reasons %+v", d.Status, d.Reasons)
	}
	msg, ok := codes(d)[types.ReasonCollectionGap]
	if !ok {
		t.Fatalf("missing COLLECTION_GAP in %+v", d.Reasons)
	}
	if msg != "Gap since last collection: 72.0h, expected max: 48.0h" {
		t.Errorf("Message = %q", msg)
	}
}

func snapWithSchema(at time.Time, rowCount int64, cols []types.SchemaColumn) types.Snapshot {
	s := snapAt(at, rowCount)
	s.Metadata = map[string]any{"schema": cols}
	return s
}

func TestAnalyzeSchemaDrift(t *testing.T) {
	e := testEngine()
	prior := []types.SchemaColumn{{Name: "id", Type: "INTEGER"}, {Name: "amount", Type: "REAL"}}

	history := []types.Snapshot{
		snapWithSchema(testNow.Add(-24*time.Hour), 1000, prior),
		snapWithSchema(testNow.Add(-48*time.Hour), 1000, prior),
	}

	t.Run("added and changed", func(t *testing.T) {
		current := snapWithSchema(testNow, 1000, []types.SchemaColumn{
			{Name: "id", Type: "INTEGER"},
			{Name: "amount", Type: "TEXT"},
			{Name: "note", Type: "TEXT"},
		})
		d := e.Analyze(current, history, testSource())

		if d.Status != types.StatusAnomaly {
			t.Errorf("Status = %q", d.Status)
		}
		msg, ok := codes(d)[types.ReasonSchemaDrift]
		if !ok {
			t.Fatalf("missing SCHEMA_DRIFT in %+v", d.Reasons)
		}
		if msg != "Schema changed (added: note; changed: amount)" {
			t.Errorf("Message = %q", msg)
		}
	})

	t.Run("removed", func(t *testing.T) {
		current := snapWithSchema(testNow, 1000, []types.SchemaColumn{{Name: "id", Type: "INTEGER"}})
		d := e.Analyze(current, history, testSource())
		msg := codes(d)[types.ReasonSchemaDrift]
		if msg != "Schema changed (removed: amount)" {
			t.Errorf("Message = %q", msg)
		}
	})

	t.Run("column order is not drift", func(t *testing.T) {
		current := snapWithSchema(testNow, 1000, []types.SchemaColumn{
			{Name: "amount", Type: "REAL"},
			{Name: "id", Type: "INTEGER"},
		})
		d := e.Analyze(current, history, testSource())
		if _, ok := codes(d)[types.ReasonSchemaDrift]; ok {
			t.Error("SCHEMA_DRIFT fired on reordered columns")
		}
	})

	t.Run("most recent schema wins", func(t *testing.T) {
		// The newest history snapshot already has the new shape; the stale
		// shape further back must not retrigger the alert.
		newShape := []types.SchemaColumn{{Name: "id", Type: "INTEGER"}}
		hist := []types.Snapshot{
			snapWithSchema(testNow.Add(-24*time.Hour), 1000, newShape),
			snapWithSchema(testNow.Add(-48*time.Hour), 1000, prior),
		}
		d := e.Analyze(snapWithSchema(testNow, 1000, newShape), hist, testSource())
		if _, ok := codes(d)[types.ReasonSchemaDrift]; ok {
			t.Error("SCHEMA_DRIFT compared against a stale schema")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		src := testSource()
		off := false
		src.SchemaDrift = &off
		current := snapWithSchema(testNow, 1000, []types.SchemaColumn{{Name: "other", Type: "TEXT"}})
		d := e.Analyze(current, history, src)
		if _, ok := codes(d)[types.ReasonSchemaDrift]; ok {
			t.Error("SCHEMA_DRIFT fired although disabled")
		}
	})

	t.Run("no prior schema", func(t *testing.T) {
		current := snapWithSchema(testNow, 1000, prior)
		d := e.Analyze(current, dailyHistory(5, 1000), testSource())
		if _, ok := codes(d)[types.ReasonSchemaDrift]; ok {
			t.Error("SCHEMA_DRIFT fired without a prior schema")
		}
	})
}

func TestConfidenceLadder(t *testing.T) {
	cases := []struct {
		count int
		want  float64
	}{
		{0, 0.0},
		{1, 0.3},
		{2, 0.3},
		{3, 0.6},
		{9, 0.6},
		{10, 0.8},
		{19, 0.8},
		{20, 0.95},
		{100, 0.95},
	}
	for _, tc := range cases {
		if got := confidence(tc.count); got != tc.want {
			t.Errorf("confidence(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		codes   []string
		want    types.Status
	}{
		{"no reasons", nil, types.StatusOK},
		{"warning only", []string{types.ReasonCollectionGap}, types.StatusWarning},
		{"mixed escalates", []string{types.ReasonNoNewData, types.ReasonStaleData}, types.StatusAnomaly},
		{"volume warnings", []string{types.ReasonVolumeLow, types.ReasonVolumeHigh}, types.StatusWarning},
		{"schema drift is critical", []string{types.ReasonSchemaDrift}, types.StatusAnomaly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var reasons []types.Reason
			for _, c := range tc.codes {
				reasons = append(reasons, types.Reason{Code: c})
			}
			if got := classify(reasons); got != tc.want {
				t.Errorf("classify(%v) = %q, want %q", tc.codes, got, tc.want)
			}
		})
	}
}

func TestAnalyzeReasonsAreOrdered(t *testing.T) {
	// Freshness before volume before schema, so reason_hash inputs and
	// operator-facing output stay stable.
	e := testEngine()
	src := testSource()
	maxAge := 1.0
	src.Freshness.MaxAgeHours = &maxAge
	minRows := int64(10)
	src.Volume.MinRowCount = &minRows

	current := snapWithSchema(testNow, 0, []types.SchemaColumn{{Name: "x", Type: "TEXT"}})
	current.Metrics["latest_timestamp"] = testNow.Add(-5 * time.Hour)

	history := make([]types.Snapshot, 5)
	for i := range history {
		history[i] = snapWithSchema(testNow.Add(-time.Duration(i+1)*24*time.Hour), 1000,
			[]types.SchemaColumn{{Name: "y", Type: "TEXT"}})
	}

	d := e.Analyze(current, history, src)

	var got []string
	for _, r := range d.Reasons {
		got = append(got, r.Code)
	}
	want := strings.Join([]string{
		types.ReasonStaleData,
		types.ReasonBelowMinVolume,
		types.ReasonZeroVolume,
		types.ReasonSchemaDrift,
	}, ",")
	if strings.Join(got, ",") != want {
		t.Errorf("reason order = %v, want %v", got, want)
	}
}
