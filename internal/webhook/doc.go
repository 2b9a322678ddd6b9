// Package webhook posts signed event payloads to configured targets.
//
// The body is the payload's canonical JSON: compact, keys sorted, identical
// bytes for identical inputs. When a target has a secret, the exact body
// bytes are signed with HMAC-SHA256 and the digest is sent as
// X-DriftGuard-Signature, so receivers verify against the raw body.
//
// Delivery makes up to four attempts with fixed delays of 1s, 5s and 15s
// between them. Connect errors, timeouts and HTTP 408/429/5xx-retryable
// statuses are retried; a 2xx or 3xx is success; any other 4xx completes the
// delivery with that status — a payload the receiver rejects outright will
// not get better by resending it.
package webhook
