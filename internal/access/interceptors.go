package access

import (
	"context"
	"net/http"
	"strings"

	"tripkey/internal/session"
	dErrors "tripkey/pkg/domain-errors"
)

// Interceptor names, as reported by Pipeline.Steps.
const (
	StepBearerToken     = "bearer_token"
	StepLiveState       = "live_state"
	StepRequireElevated = "require_elevated"
)

// TokenVerifier verifies a bearer token's signature and expiry.
type TokenVerifier interface {
	Verify(token string) (*session.Claims, error)
}

type bearerToken struct {
	verifier TokenVerifier
}

// BearerToken verifies the Authorization header and stores the claims as a TokenHint.
func BearerToken(verifier TokenVerifier) Interceptor {
	return &bearerToken{verifier: verifier}
}

func (b *bearerToken) Name() string { return StepBearerToken }

func (b *bearerToken) Intercept(_ http.ResponseWriter, r *http.Request) (context.Context, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonTokenInvalid, "missing bearer token")
	}

	claims, err := b.verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	return WithTokenHint(r.Context(), &TokenHint{
		TripID:      claims.TripID,
		MemberID:    claims.MemberID,
		Role:        claims.Role,
		DisplayName: claims.DisplayName,
		ExpiresAt:   claims.ExpiresAt,
	}), nil
}

type liveState struct {
	authorizer *Authorizer
}

// LiveState turns the TokenHint into an AuthContext using current directory state.
func LiveState(authorizer *Authorizer) Interceptor {
	return &liveState{authorizer: authorizer}
}

func (l *liveState) Name() string { return StepLiveState }

func (l *liveState) Intercept(_ http.ResponseWriter, r *http.Request) (context.Context, error) {
	ctx := r.Context()
	hint, ok := TokenHintFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "live state check ran before token verification")
	}
	auth, err := l.authorizer.Authorize(ctx, hint)
	if err != nil {
		return nil, err
	}
	return WithAuthContext(ctx, auth), nil
}

type requireElevated struct{}

// RequireElevated admits only members whose live role is elevated.
func RequireElevated() Interceptor {
	return requireElevated{}
}

func (requireElevated) Name() string { return StepRequireElevated }

func (requireElevated) Intercept(_ http.ResponseWriter, r *http.Request) (context.Context, error) {
	auth, ok := FromContext(r.Context())
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "role gate ran before the live state check")
	}
	if !auth.IsElevated() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the trip organizer can do this")
	}
	return r.Context(), nil
}
