package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripkey/internal/access"
	"tripkey/internal/platform/health"
	"tripkey/internal/ratelimit"
	triphandler "tripkey/internal/trip/handler"
	request "tripkey/pkg/platform/middleware/request"
)

// Options are the transport-level settings.
type Options struct {
	CORSAllowedOrigin string
	TrustForwardedFor bool
	MaxBodyBytes      int64
}

// Deps are the collaborators the router composes into pipelines.
type Deps struct {
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Health     *health.Handler
	Trip       *triphandler.Handler
	Tokens     access.TokenVerifier
	Authorizer *access.Authorizer
	// MemberLimiter budgets authenticated requests per (trip, member).
	MemberLimiter *ratelimit.Limiter
	// JoinLimiter budgets create and join per client address.
	JoinLimiter *ratelimit.Limiter
}

// NewRouter wires the middleware stack and every route. Protected routes run
// BearerToken, then the member rate limit, then LiveState, so forged tokens
// never draw on a real member's quota.
func NewRouter(d Deps, opts Options) http.Handler {
	accessMetrics := access.NewMetrics(d.Registry)
	limitMetrics := ratelimit.NewMetrics(d.Registry)
	requestMetrics := request.NewMetrics(d.Registry)

	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.ClientIP(opts.TrustForwardedFor))
	r.Use(request.Logger(d.Logger))
	r.Use(request.Latency(requestMetrics))
	// Preflight is answered here, before routing, for every path.
	r.Use(request.CORS(opts.CORSAllowedOrigin))
	r.Use(request.ContentTypeJSON)
	if opts.MaxBodyBytes > 0 {
		r.Use(request.BodyLimit(opts.MaxBodyBytes))
	}

	base := access.NewPipeline(d.Logger, access.WithMetrics(accessMetrics))
	public := base.Use(
		ratelimit.NewInterceptor(d.JoinLimiter, ratelimit.ScopeIP, d.Logger, ratelimit.WithMetrics(limitMetrics)),
	)
	member := base.Use(
		access.BearerToken(d.Tokens),
		ratelimit.NewInterceptor(d.MemberLimiter, ratelimit.ScopeMember, d.Logger, ratelimit.WithMetrics(limitMetrics)),
		access.LiveState(d.Authorizer),
	)

	d.Trip.Register(r, triphandler.Pipelines{
		Public:   public,
		Member:   member,
		Elevated: member.Use(access.RequireElevated()),
	})

	d.Health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{Registry: d.Registry}))

	return r
}
