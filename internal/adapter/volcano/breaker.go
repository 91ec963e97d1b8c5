package volcano

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/volcano-risk-service/internal/domain"
)

// ErrCircuitOpen is returned while the status feed is considered down.
var ErrCircuitOpen = errors.New("status feed circuit open")

// BreakerSettings tunes the status feed circuit breaker.
type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures before opening
	OpenTimeout time.Duration // how long to stay open before probing
}

// DefaultBreakerSettings opens after five consecutive failures for one minute.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxFailures: 5, OpenTimeout: time.Minute}
}

// BreakerFeed wraps a status feed in a circuit breaker. It never retries; while
// open, calls fail immediately so scoring falls back to the heuristic without
// waiting on the upstream timeout.
type BreakerFeed struct {
	inner Source
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerFeed creates a circuit-breaking decorator around a status feed.
func NewBreakerFeed(inner Source, settings BreakerSettings, logger *slog.Logger) *BreakerFeed {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "volcano-status",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerFeed{inner: inner, cb: cb}
}

// Status delegates to the wrapped feed through the breaker.
func (b *BreakerFeed) Status(ctx context.Context, vnum string) (domain.AuthoritativeStatus, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Status(ctx, vnum)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.AuthoritativeStatus{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return domain.AuthoritativeStatus{}, err
	}
	return result.(domain.AuthoritativeStatus), nil
}

// Elevated passes through to the wrapped source.
func (b *BreakerFeed) Elevated(ctx context.Context) ([]domain.ElevatedVolcano, error) {
	return b.inner.Elevated(ctx)
}

// State reports the breaker state, for logs and tests.
func (b *BreakerFeed) State() gobreaker.State {
	return b.cb.State()
}
