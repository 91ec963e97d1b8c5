package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Freshness decision reasons.
const (
	ReasonFirstTime    = "first time"
	ReasonFresh        = "fresh"
	ReasonRecentWindow = "recent window"
	ReasonCache        = "cache"
)

// LedgerStore persists one fetch record per query signature.
type LedgerStore interface {
	GetWindow(ctx context.Context, signature string) (domain.WindowFetchRecord, bool, error)
	PutWindow(ctx context.Context, rec domain.WindowFetchRecord) error
}

// Decision is the ledger's verdict for one signature.
type Decision struct {
	Fetch  bool
	Reason string
}

// FreshnessLedger decides whether a query window needs to be fetched again.
type FreshnessLedger struct {
	store LedgerStore
	clock clockwork.Clock
}

// NewFreshnessLedger creates a ledger over store using clock for "now".
func NewFreshnessLedger(store LedgerStore, clock clockwork.Clock) *FreshnessLedger {
	return &FreshnessLedger{store: store, clock: clock}
}

// ShouldFetch applies the freshness policy: unseen signatures are fetched,
// records younger than ttl are skipped, and windows ending within two days of
// now are refetched since upstream still revises recent events.
func (l *FreshnessLedger) ShouldFetch(ctx context.Context, signature string, q domain.WindowQuery, ttl time.Duration) (Decision, error) {
	rec, ok, err := l.store.GetWindow(ctx, signature)
	if err != nil {
		return Decision{}, fmt.Errorf("read ledger %s: %w", signature, err)
	}
	if !ok {
		return Decision{Fetch: true, Reason: ReasonFirstTime}, nil
	}

	now := l.clock.Now()
	if now.Sub(rec.FetchedAt) < ttl {
		return Decision{Fetch: false, Reason: ReasonFresh}, nil
	}
	if q.IsRecentEnd(now) {
		return Decision{Fetch: true, Reason: ReasonRecentWindow}, nil
	}
	return Decision{Fetch: false, Reason: ReasonCache}, nil
}

// Record stores a completed fetch, replacing any earlier record for the signature.
func (l *FreshnessLedger) Record(ctx context.Context, rec domain.WindowFetchRecord) error {
	if err := l.store.PutWindow(ctx, rec); err != nil {
		return fmt.Errorf("write ledger %s: %w", rec.Signature, err)
	}
	return nil
}
