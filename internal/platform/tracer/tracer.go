// Package tracer is a small tracing facade over OpenTelemetry so domain packages
// can emit spans without importing otel APIs directly.
//
// Implementations:
//   - NoopTracer: tests and deployments without a collector
//   - OTelTracer: adapter over the global (or injected) otel tracer
package tracer

import (
	"context"
	"fmt"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span; a non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanPINResolve, tracer.Bool(tracer.AttrScoped, false))
//	defer span.End(err)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }
func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute { return Attribute{Key: key, Value: value} }

// ID records a trip or member identifier.
func ID(key string, value fmt.Stringer) Attribute { return Attribute{Key: key, Value: value} }

// Duration records the value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

const (
	SpanPINResolve = "credential.resolve"
	SpanLiveState  = "access.live_state"
	SpanRotate     = "credential.rotate"
)

const (
	AttrTripID      = "trip.id"
	AttrMemberID    = "member.id"
	AttrScoped      = "resolve.scoped"
	AttrCandidates  = "resolve.candidates"
	AttrComparisons = "resolve.comparisons"
	AttrMatched     = "resolve.matched"
	AttrReason      = "access.reason"
)

// Keys that could carry a PIN or a bearer token. Adapters never export them.
const (
	AttrPIN          = "pin"
	AttrPINHash      = "pin.hash"
	AttrSessionToken = "session.token"
)
