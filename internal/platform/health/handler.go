// Package health serves the tripkey liveness, readiness and status endpoints.
//
// Readiness separates the dependencies a PIN join cannot do without (the trip
// directory and the rate-limit counters) from best-effort ones such as the
// notification broker. Losing a best-effort dependency degrades the service
// but keeps it in rotation.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"tripkey/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const checkTimeout = 2 * time.Second

const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// CheckFunc reports nil when a dependency is healthy.
type CheckFunc func(ctx context.Context) error

type dependency struct {
	check    CheckFunc
	required bool
}

type Handler struct {
	startTime   time.Time
	environment string

	mu       sync.RWMutex
	deps     map[string]dependency
	backends map[string]string
}

func New(environment string) *Handler {
	return &Handler{
		startTime:   time.Now(),
		environment: environment,
		deps:        make(map[string]dependency),
		backends:    make(map[string]string),
	}
}

// Require registers a dependency whose failure takes the service out of rotation.
func (h *Handler) Require(name string, check CheckFunc) {
	h.register(name, check, true)
}

// Observe registers a best-effort dependency; its failure only degrades readiness.
func (h *Handler) Observe(name string, check CheckFunc) {
	h.register(name, check, false)
}

func (h *Handler) register(name string, check CheckFunc, required bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps[name] = dependency{check: check, required: required}
}

// SetBackend records which implementation serves a concern, e.g. "directory"
// served by "postgres" or "memory".
func (h *Handler) SetBackend(concern, backend string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backends[concern] = backend
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs all checks in parallel. It answers 503 only when a
// required dependency is down.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.deps))
	deps := make([]dependency, 0, len(h.deps))
	for name, dep := range h.deps {
		names = append(names, name)
		deps = append(deps, dep)
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	errs := make([]error, len(deps))
	var g errgroup.Group
	for i, dep := range deps {
		g.Go(func() error {
			errs[i] = dep.check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	response := ReadinessResponse{Status: StatusReady, Checks: make(map[string]string, len(deps))}
	for i, name := range names {
		if errs[i] == nil {
			response.Checks[name] = "up"
			continue
		}
		response.Checks[name] = "down: " + errs[i].Error()
		if deps[i].required {
			response.Status = StatusNotReady
		} else if response.Status == StatusReady {
			response.Status = StatusDegraded
		}
	}

	code := http.StatusOK
	if response.Status == StatusNotReady {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, response)
}

type StatusResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Environment   string            `json:"environment"`
	Backends      map[string]string `json:"backends,omitempty"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Timestamp     string            `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	backends := make(map[string]string, len(h.backends))
	for k, v := range h.backends {
		backends[k] = v
	}
	h.mu.RUnlock()

	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		Backends:      backends,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
