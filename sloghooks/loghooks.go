// Package sloghooks logs relstate.Hooks events through log/slog with
// sampling for noisy events and key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/relstate"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	FetchSharedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	sharedCtr   atomic.Uint64
}

var _ relstate.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("relstate.self_heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("relstate.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("relstate.fetch_failed", "key", h.redact(key), "err", err)
}

func (h *Hooks) FetchShared(key string) {
	if h.l == nil || !sample(h.opts.FetchSharedEvery, &h.sharedCtr) {
		return
	}
	h.l.Debug("relstate.fetch_shared", "key", h.redact(key))
}

func (h *Hooks) MutationFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("relstate.mutation_failed", "key", h.redact(key), "err", err)
}

func (h *Hooks) RollbackApplied(key string) {
	if h.l == nil {
		return
	}
	h.l.Info("relstate.rollback_applied", "key", h.redact(key))
}

func (h *Hooks) RollbackSkipped(key string) {
	if h.l == nil {
		return
	}
	h.l.Info("relstate.rollback_skipped", "key", h.redact(key), "msg", "newer write owns the key")
}
