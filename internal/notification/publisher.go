package notification

import (
	"context"
	"log/slog"
	"time"

	"tripkey/pkg/platform/circuit"
	"tripkey/pkg/requestcontext"
)

// Publisher delivers an event to one backend.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

const defaultPublishTimeout = 2 * time.Second

// BestEffort wraps a Publisher so failures are logged and dropped.
type BestEffort struct {
	next    Publisher
	logger  *slog.Logger
	timeout time.Duration
	breaker *circuit.Breaker
}

type BestEffortOption func(*BestEffort)

// WithBreaker skips publishing while the breaker is open, so a dead broker
// does not add the publish timeout to every join.
func WithBreaker(b *circuit.Breaker) BestEffortOption {
	return func(be *BestEffort) {
		be.breaker = b
	}
}

func WithPublishTimeout(d time.Duration) BestEffortOption {
	return func(be *BestEffort) {
		if d > 0 {
			be.timeout = d
		}
	}
}

func NewBestEffort(next Publisher, logger *slog.Logger, opts ...BestEffortOption) *BestEffort {
	be := &BestEffort{next: next, logger: logger, timeout: defaultPublishTimeout}
	for _, opt := range opts {
		opt(be)
	}
	return be
}

// Notify publishes ev and never reports failure.
func (b *BestEffort) Notify(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	if b.breaker != nil && !b.breaker.Allow() {
		b.logger.DebugContext(ctx, "notification skipped",
			"event_type", string(ev.Type),
			"circuit", b.breaker.Name(),
		)
		return
	}

	err := b.next.Publish(ctx, ev)
	if b.breaker != nil {
		if state, changed := b.breaker.Record(err); changed {
			b.logger.WarnContext(ctx, "notification circuit changed",
				"circuit", b.breaker.Name(),
				"state", state.String(),
			)
		}
	}
	if err != nil {
		b.logger.WarnContext(ctx, "notification dropped",
			"event_type", string(ev.Type),
			"trip_id", ev.TripID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
