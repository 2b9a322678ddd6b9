package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/store"
	"github.com/driftguard/driftguard/internal/webhook"
	"github.com/driftguard/driftguard/pkg/types"
)

// Deliverer posts one payload to one webhook target. *webhook.Deliverer is
// the production implementation.
type Deliverer interface {
	Deliver(ctx context.Context, p types.WebhookPayload, target config.Webhook) types.DeliveryResult
}

var _ Deliverer = (*webhook.Deliverer)(nil)

// Pipeline routes decisions to webhook targets.
type Pipeline struct {
	alerting  config.AlertingConfig
	store     *store.Store
	deliverer Deliverer
	agentID   string
	dryRun    bool
	now       func() time.Time // injectable for deterministic tests
}

// NewPipeline wires the alerting pipeline. With dryRun set, gating runs
// normally but nothing is delivered, logged or persisted.
func NewPipeline(alerting config.AlertingConfig, st *store.Store, d Deliverer, agentID string, dryRun bool) *Pipeline {
	return &Pipeline{
		alerting:  alerting,
		store:     st,
		deliverer: d,
		agentID:   agentID,
		dryRun:    dryRun,
		now:       time.Now,
	}
}

// Process dispatches one decision for src across all configured webhooks and
// reports the outcome per target name. A target skipped by its event filter
// or by deduplication counts as true; false means a dispatch was attempted
// and failed.
func (p *Pipeline) Process(ctx context.Context, src config.Source, d types.Decision) map[string]bool {
	results := make(map[string]bool, len(p.alerting.Webhooks))

	event := types.EventTypeForStatus(d.Status)
	for _, wh := range p.alerting.Webhooks {
		results[wh.Name] = p.process(ctx, src, d, event, wh)
	}
	return results
}

func (p *Pipeline) process(ctx context.Context, src config.Source, d types.Decision, event types.EventType, wh config.Webhook) bool {
	if !wh.Accepts(string(event)) {
		return true
	}

	state, err := p.store.AlertState(src.Name, wh.Name)
	if err != nil {
		slog.Error("alert: load state failed", "source", src.Name, "target", wh.Name, "err", err)
		return false
	}
	if state == nil {
		state = &types.AlertState{
			SourceName:     src.Name,
			TargetName:     wh.Name,
			NotifiedStatus: types.StatusUnknown,
		}
	}

	now := p.now()
	if !state.ShouldAlert(d, now) {
		slog.Debug("alert: suppressed", "source", src.Name, "target", wh.Name,
			"status", d.Status, "reason_hash", d.ReasonHash())
		return true
	}

	if p.dryRun {
		slog.Info("alert: would send (dry run)", "source", src.Name, "target", wh.Name,
			"event", event, "status", d.Status)
		return true
	}

	target, err := resolveTarget(wh)
	if err != nil {
		slog.Error("alert: resolve target failed", "source", src.Name, "target", wh.Name, "err", err)
		return false
	}

	payload := types.NewWebhookPayload(event, src.Name, src.Type, p.agentID, d, now)
	body, err := payload.CanonicalJSON()
	if err != nil {
		slog.Error("alert: encode payload failed", "source", src.Name, "target", wh.Name, "err", err)
		return false
	}

	res := p.deliverer.Deliver(ctx, payload, target)

	if err := p.store.LogDelivery(src.Name, wh.Name, string(event), types.PayloadHash(body), res); err != nil {
		slog.Error("alert: log delivery failed", "source", src.Name, "target", wh.Name, "err", err)
	}

	if !res.Success {
		// State stays untouched so the next cycle retries this transition.
		slog.Warn("alert: delivery failed", "source", src.Name, "target", wh.Name,
			"status_code", res.StatusCode, "attempts", res.Attempts, "err", res.Error)
		return false
	}

	sent := now
	cooldown := now.Add(p.alerting.Cooldown())
	if err := p.store.SetAlertState(types.AlertState{
		SourceName:         src.Name,
		TargetName:         wh.Name,
		NotifiedStatus:     d.Status,
		NotifiedReasonHash: d.ReasonHash(),
		LastChangeAt:       now,
		LastSentAt:         &sent,
		CooldownUntil:      &cooldown,
	}); err != nil {
		slog.Error("alert: save state failed", "source", src.Name, "target", wh.Name, "err", err)
		return false
	}

	slog.Info("alert: delivered", "source", src.Name, "target", wh.Name,
		"event", event, "status", d.Status, "attempts", res.Attempts, "latency_ms", res.LatencyMS)
	return true
}

// resolveTarget substitutes ${NAME} environment references in the target's
// url and secret at dispatch time, so secrets never sit in parsed config.
func resolveTarget(wh config.Webhook) (config.Webhook, error) {
	url, err := config.ResolveString(wh.URL)
	if err != nil {
		return config.Webhook{}, err
	}
	secret, err := config.ResolveString(wh.Secret)
	if err != nil {
		return config.Webhook{}, err
	}
	wh.URL = url
	wh.Secret = secret
	return wh, nil
}
