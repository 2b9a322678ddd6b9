package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftguard/driftguard/internal/alert"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/connector"
	"github.com/driftguard/driftguard/internal/detect"
	"github.com/driftguard/driftguard/internal/store"
	"github.com/driftguard/driftguard/pkg/types"
)

// loopInterval is the sleep between check-loop iterations in daemon mode.
const loopInterval = 60 * time.Second

// CheckResult is the outcome of handling one source in one iteration.
type CheckResult struct {
	Source        string
	Skipped       bool // not due (and not forced)
	CollectFailed bool
	Decision      *types.Decision
	Dispatched    map[string]bool
	Err           error
}

// connectorFactory builds the Connector for a source; injectable for tests.
type connectorFactory func(src config.Source) (connector.Connector, error)

// Runner drives the collect → store → detect → alert cycle.
type Runner struct {
	cfg        *config.Config
	store      *store.Store
	engine     *detect.Engine
	pipeline   *alert.Pipeline
	metrics    *Metrics
	connectors connectorFactory
	now        func() time.Time
}

// NewRunner wires a Runner over an opened store. metrics may be nil when no
// endpoint is served.
func NewRunner(cfg *config.Config, st *store.Store, engine *detect.Engine, pipeline *alert.Pipeline, metrics *Metrics) *Runner {
	return &Runner{
		cfg:        cfg,
		store:      st,
		engine:     engine,
		pipeline:   pipeline,
		metrics:    metrics,
		connectors: connector.New,
		now:        time.Now,
	}
}

// RunOnce walks the enabled sources sequentially and handles every due one.
// With force set the due-check is skipped; with only set, just that source
// is considered. Per-source failures land in the result, not in the returned
// error.
func (r *Runner) RunOnce(ctx context.Context, force bool, only string) ([]CheckResult, error) {
	var results []CheckResult
	matched := false

	for _, src := range r.cfg.Sources {
		if only != "" && src.Name != only {
			continue
		}
		matched = true
		if !src.IsEnabled() {
			slog.Debug("runner: source disabled", "source", src.Name)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		res := r.checkSource(ctx, src, force)
		r.metrics.observeCheck(res)
		results = append(results, res)

		if res.Err != nil {
			slog.Error("runner: source check failed", "source", src.Name, "err", res.Err)
		}
	}

	if only != "" && !matched {
		return nil, fmt.Errorf("unknown source %q", only)
	}
	return results, nil
}

func (r *Runner) checkSource(ctx context.Context, src config.Source, force bool) CheckResult {
	res := CheckResult{Source: src.Name}

	if !force {
		last, err := r.store.LastSnapshot(src.Name)
		if err != nil {
			res.Err = err
			return res
		}
		due, err := isDue(src.Schedule, last, r.now())
		if err != nil {
			res.Err = err
			return res
		}
		if !due {
			res.Skipped = true
			slog.Debug("runner: source not due", "source", src.Name, "schedule", src.Schedule)
			return res
		}
	}

	conn, err := r.connectors(src)
	if err != nil {
		res.Err = err
		return res
	}

	snap := connector.CollectWithErrorHandling(ctx, conn, src)
	res.CollectFailed = !snap.IsSuccess()

	id, err := r.store.AppendSnapshot(snap)
	if err != nil {
		res.Err = err
		return res
	}
	snap.ID = id

	history, err := r.history(src.Name, id)
	if err != nil {
		res.Err = err
		return res
	}

	decision := r.engine.Analyze(snap, history, src)
	res.Decision = &decision

	slog.Info("runner: source checked", "source", src.Name,
		"status", decision.Status, "reasons", len(decision.Reasons),
		"confidence", decision.Confidence)

	res.Dispatched = r.pipeline.Process(ctx, src, decision)
	return res
}

// history returns the baseline window for a source: successful snapshots,
// most recent first, with the just-appended snapshot filtered out so the
// engine never compares the current observation against itself.
func (r *Runner) history(source string, currentID int64) ([]types.Snapshot, error) {
	// window+1 rows always include the current snapshot: it carries the
	// highest id, and the store orders ties on collected_at by id.
	window := r.cfg.Baseline.WindowSize
	snaps, err := r.store.ListSnapshots(source, window+1, r.cfg.Baseline.MaxAgeDays, true)
	if err != nil {
		return nil, err
	}

	out := snaps[:0]
	for _, s := range snaps {
		if s.ID != currentID {
			out = append(out, s)
		}
	}
	if len(out) > window {
		out = out[:window]
	}
	return out, nil
}

// Run loops RunOnce until ctx is cancelled. The source being handled when
// cancellation arrives is finished first.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("runner: daemon started", "sources", len(r.cfg.Sources), "interval", loopInterval)

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx, false, ""); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			slog.Info("runner: shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
