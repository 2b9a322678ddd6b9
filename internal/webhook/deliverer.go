package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/pkg/types"
)

// retryDelays are the waits between delivery attempts; attempts = delays + 1.
var retryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}

// retryableStatus lists HTTP responses worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// Deliverer posts payloads to webhook targets with bounded retry.
type Deliverer struct {
	client *http.Client
	delays []time.Duration
	dryRun bool
}

// New returns a Deliverer. In dry-run mode Deliver performs no network
// activity and reports success.
func New(dryRun bool) *Deliverer {
	return &Deliverer{
		client: &http.Client{},
		delays: retryDelays,
		dryRun: dryRun,
	}
}

// Sign computes the signature header value for body: sha256=<hex HMAC-SHA256>.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts the payload to target, retrying transient failures. The
// result is final: transport errors and retryable statuses are absorbed into
// it, and any non-retryable response counts as a completed delivery with
// that status.
func (d *Deliverer) Deliver(ctx context.Context, p types.WebhookPayload, target config.Webhook) types.DeliveryResult {
	if d.dryRun {
		return types.DeliveryResult{Success: true, StatusCode: http.StatusOK}
	}

	body, err := p.CanonicalJSON()
	if err != nil {
		return types.DeliveryResult{Error: fmt.Sprintf("encode payload: %v", err)}
	}

	start := time.Now()
	res := types.DeliveryResult{}

	op := func() error {
		res.Attempts++
		status, err := d.attempt(ctx, body, p, target)
		if err != nil {
			res.StatusCode = 0
			res.Error = err.Error()
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			slog.Debug("webhook: attempt failed", "target", target.Name, "attempt", res.Attempts, "err", err)
			return err
		}

		res.StatusCode = status
		switch {
		case status < 400:
			res.Success = true
			res.Error = ""
			return nil
		case retryableStatus[status]:
			res.Error = fmt.Sprintf("HTTP %d", status)
			slog.Debug("webhook: retryable status", "target", target.Name, "attempt", res.Attempts, "status", status)
			return fmt.Errorf("HTTP %d", status)
		default:
			// Any status outside the retryable set is terminal: resending
			// the same bytes cannot change the outcome. The delivery is
			// complete, whatever the receiver thought of it.
			res.Success = true
			res.Error = ""
			return nil
		}
	}

	_ = backoff.Retry(op, backoff.WithContext(&fixedDelayBackOff{delays: d.delays}, ctx))

	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

// attempt performs one POST and returns the HTTP status received.
func (d *Deliverer) attempt(ctx context.Context, body []byte, p types.WebhookPayload, target config.Webhook) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, target.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DriftGuard-Event", string(p.EventType))
	req.Header.Set("X-DriftGuard-Timestamp", p.Timestamp.UTC().Format(time.RFC3339))
	req.Header.Set("X-DriftGuard-Event-ID", p.EventID)
	if target.Secret != "" {
		req.Header.Set("X-DriftGuard-Signature", Sign(target.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// fixedDelayBackOff steps through a fixed delay schedule once, then stops.
type fixedDelayBackOff struct {
	delays []time.Duration
	next   int
}

func (b *fixedDelayBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

func (b *fixedDelayBackOff) Reset() { b.next = 0 }
