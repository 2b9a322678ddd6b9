package detect

import (
	"math"
	"sort"
	"time"

	"github.com/driftguard/driftguard/pkg/types"
)

// Baseline summarizes a window of successful snapshots. Input order does not
// matter. Snapshots without a row_count still count toward SnapshotCount and
// the expected interval, but not toward the volume statistics.
func Baseline(history []types.Snapshot) types.BaselineSummary {
	summary := types.BaselineSummary{SnapshotCount: len(history)}
	if len(history) == 0 {
		return summary
	}

	times := make([]time.Time, 0, len(history))
	var counts []float64
	for _, snap := range history {
		times = append(times, snap.CollectedAt)
		if rc, ok := snap.RowCount(); ok {
			counts = append(counts, float64(rc))
		}
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	oldest, newest := times[0], times[len(times)-1]
	summary.OldestSnapshotAt = &oldest
	summary.NewestSnapshotAt = &newest

	if len(times) >= 2 {
		gaps := make([]float64, len(times)-1)
		for i := 1; i < len(times); i++ {
			gaps[i-1] = times[i].Sub(times[i-1]).Seconds()
		}
		interval := median(gaps)
		summary.ExpectedIntervalSeconds = &interval
	}

	if len(counts) > 0 {
		sort.Float64s(counts)
		med := medianSorted(counts)
		lo, hi := counts[0], counts[len(counts)-1]
		sd := sampleStddev(counts)
		summary.RowCountMedian = &med
		summary.RowCountMin = &lo
		summary.RowCountMax = &hi
		summary.RowCountStddev = &sd
	}
	return summary
}

// median sorts vs in place and returns its median.
func median(vs []float64) float64 {
	sort.Float64s(vs)
	return medianSorted(vs)
}

func medianSorted(vs []float64) float64 {
	n := len(vs)
	if n%2 == 1 {
		return vs[n/2]
	}
	return (vs[n/2-1] + vs[n/2]) / 2
}

// sampleStddev returns the sample standard deviation of vs, and exactly 0
// for a single value.
func sampleStddev(vs []float64) float64 {
	n := float64(len(vs))
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / n

	var ss float64
	for _, v := range vs {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}
