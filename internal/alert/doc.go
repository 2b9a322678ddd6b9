// Package alert decides which webhook targets receive a decision and keeps
// the per-(source, target) notification state.
//
// A decision fans out to every configured webhook. Each target is gated
// three times: the event filter (targets subscribe to event types), the
// cooldown window, and deduplication on (status, reason hash). State is
// written only after a successful delivery, so a failed dispatch is retried
// on the next cycle; every actual delivery attempt chain is logged either
// way.
package alert
