package access

import (
	"context"
	"time"

	"tripkey/internal/directory/models"
	id "tripkey/pkg/domain"
)

// TokenHint is what a verified bearer token claims. It proves the token was
// issued by this service and is unexpired, nothing more. Only the rate limiter
// and the live-state check read it.
type TokenHint struct {
	TripID      id.TripID
	MemberID    id.MemberID
	Role        models.Role
	DisplayName string
	ExpiresAt   time.Time
}

// AuthContext is built from the live directory record on every request.
// Handlers branch on this and never on token fields.
type AuthContext struct {
	TripID      id.TripID
	MemberID    id.MemberID
	Role        models.Role
	DisplayName string
	IsCreator   bool
	IsChild     bool
	JoinedAt    time.Time
}

func (a *AuthContext) IsElevated() bool {
	return a.Role == models.RoleElevated
}

type (
	tokenHintKey   struct{}
	authContextKey struct{}
)

func WithTokenHint(ctx context.Context, hint *TokenHint) context.Context {
	return context.WithValue(ctx, tokenHintKey{}, hint)
}

func TokenHintFrom(ctx context.Context) (*TokenHint, bool) {
	hint, ok := ctx.Value(tokenHintKey{}).(*TokenHint)
	return hint, ok && hint != nil
}

func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext returns the live-checked authorization context.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return auth, ok && auth != nil
}
