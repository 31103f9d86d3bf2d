package access

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/httputil"
	"tripkey/pkg/requestcontext"
)

// Interceptor is one step of a request pipeline. It either returns the context
// for the next step or an error that ends the request with a rendered error.
// Interceptors may set response headers but never write a body.
type Interceptor interface {
	Name() string
	Intercept(w http.ResponseWriter, r *http.Request) (context.Context, error)
}

// Pipeline runs interceptors in the order they were added, then the handler.
//
//	protected := access.NewPipeline(logger).
//	    Use(access.BearerToken(tokens), limiter, access.LiveState(authz)).
//	    Then(handler)
type Pipeline struct {
	steps   []Interceptor
	logger  *slog.Logger
	metrics *Metrics
}

type PipelineOption func(*Pipeline)

func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func NewPipeline(logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use returns a new pipeline with the interceptors appended, so a shared base
// pipeline can be extended per route group.
func (p *Pipeline) Use(steps ...Interceptor) *Pipeline {
	return &Pipeline{
		steps:   append(slices.Clone(p.steps), steps...),
		logger:  p.logger,
		metrics: p.metrics,
	}
}

// Steps lists interceptor names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

func (p *Pipeline) Then(next http.Handler) http.Handler {
	steps := slices.Clone(p.steps)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, step := range steps {
			ctx, err := step.Intercept(w, r)
			if err != nil {
				p.reject(r.Context(), w, step.Name(), err)
				return
			}
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Pipeline) ThenFunc(next http.HandlerFunc) http.Handler {
	return p.Then(next)
}

func (p *Pipeline) reject(ctx context.Context, w http.ResponseWriter, step string, err error) {
	reason := string(dErrors.ReasonOf(err))
	if reason == "" {
		reason = "none"
	}
	p.metrics.IncRejection(step, reason)

	level := slog.LevelInfo
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "request rejected",
		"step", step,
		"reason", reason,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
