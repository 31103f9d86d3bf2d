package access

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tripkey/pkg/domain-errors"
)

type recordingStep struct {
	name string
	log  *[]string
	err  error
}

func (r recordingStep) Name() string { return r.name }

func (r recordingStep) Intercept(w http.ResponseWriter, req *http.Request) (context.Context, error) {
	*r.log = append(*r.log, r.name)
	if r.err != nil {
		return nil, r.err
	}
	w.Header().Add("X-Steps", r.name)
	return req.Context(), nil
}

func TestPipeline_RunsInOrderAndShortCircuits(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var calls []string

	base := NewPipeline(logger).Use(recordingStep{name: "a", log: &calls})
	full := base.Use(
		recordingStep{name: "b", log: &calls, err: dErrors.New(dErrors.CodeForbidden, "nope")},
		recordingStep{name: "c", log: &calls},
	)

	assert.Equal(t, []string{"a"}, base.Steps(), "Use must not mutate the receiver")
	assert.Equal(t, []string{"a", "b", "c"}, full.Steps())

	handlerRan := false
	h := full.ThenFunc(func(http.ResponseWriter, *http.Request) { handlerRan = true })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Equal(t, []string{"a"}, rec.Header().Values("X-Steps"))
	assert.False(t, handlerRan)
}

func TestPipeline_PassesContextForward(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hint := &TokenHint{DisplayName: "Alice"}

	setter := interceptorFunc{name: "set", fn: func(_ http.ResponseWriter, r *http.Request) (context.Context, error) {
		return WithTokenHint(r.Context(), hint), nil
	}}

	var got *TokenHint
	h := NewPipeline(logger).Use(setter).ThenFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = TokenHintFrom(r.Context())
	})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Same(t, hint, got)
}

type interceptorFunc struct {
	name string
	fn   func(http.ResponseWriter, *http.Request) (context.Context, error)
}

func (f interceptorFunc) Name() string { return f.name }

func (f interceptorFunc) Intercept(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	return f.fn(w, r)
}
