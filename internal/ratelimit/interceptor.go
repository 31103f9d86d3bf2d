package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"tripkey/internal/access"
	"tripkey/internal/platform/privacy"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/requestcontext"
)

// Scope selects how requests are keyed.
type Scope string

const (
	// ScopeMember keys by the verified token's trip and member.
	ScopeMember Scope = "member"
	// ScopeIP keys by client address, for unauthenticated endpoints.
	ScopeIP Scope = "ip"
)

// Interceptor enforces a Limiter as a pipeline step. Store failures let the
// request through.
type Interceptor struct {
	limiter *Limiter
	scope   Scope
	logger  *slog.Logger
	metrics *Metrics
}

type InterceptorOption func(*Interceptor)

func WithMetrics(m *Metrics) InterceptorOption {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

func NewInterceptor(limiter *Limiter, scope Scope, logger *slog.Logger, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{limiter: limiter, scope: scope, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Name() string { return "rate_limit_" + string(i.scope) }

func (i *Interceptor) Intercept(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	ctx := r.Context()
	key := i.key(ctx)

	res, err := i.limiter.Check(ctx, key)
	if err != nil {
		i.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
			"error", err,
			"scope", string(i.scope),
			"request_id", requestcontext.RequestID(ctx),
		)
		i.metrics.IncStoreError(i.scope)
		return ctx, nil
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

	if !res.Allowed {
		i.metrics.IncRejected(i.scope)
		i.logger.WarnContext(ctx, "rate limit exceeded",
			"scope", string(i.scope),
			"client_ip", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
			"retry_after", res.RetryAfter,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.RateLimited(res.RetryAfter, "too many requests, please try again later")
	}
	return ctx, nil
}

func (i *Interceptor) key(ctx context.Context) string {
	if i.scope == ScopeMember {
		if hint, ok := access.TokenHintFrom(ctx); ok {
			return MemberKey(hint.TripID.String(), hint.MemberID.String())
		}
	}
	return IPKey(requestcontext.ClientIP(ctx))
}

func MemberKey(tripID, memberID string) string {
	return "trip:" + tripID + ":member:" + memberID
}

func IPKey(ip string) string {
	return "ip:" + ip
}

var _ access.Interceptor = (*Interceptor)(nil)
