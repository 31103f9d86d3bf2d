// Package session issues and verifies the signed bearer tokens handed out at
// trip creation and join. Tokens are not stored; a valid signature proves only
// that this service issued the token and that it has not expired.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tripkey/internal/directory/models"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/requestcontext"
)

// DefaultTTL is the fixed token lifetime when none is configured.
const DefaultTTL = 30 * 24 * time.Hour

// Claims are the verified contents of a session token.
type Claims struct {
	TripID      id.TripID
	MemberID    id.MemberID
	Role        models.Role
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	TokenID     string
}

type tokenClaims struct {
	TripID      string `json:"trip_id"`
	MemberID    string `json:"member_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Service signs tokens with HS256 and rejects every other algorithm.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides the clock used by Verify.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(signingKey, issuer string, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL reports the fixed token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue signs a token for a member. IssuedAt comes from the request time.
func (s *Service) Issue(ctx context.Context, tripID id.TripID, memberID id.MemberID, role models.Role, displayName string) (string, *Claims, error) {
	now := requestcontext.Now(ctx).Truncate(time.Second)
	claims := &Claims{
		TripID:      tripID,
		MemberID:    memberID,
		Role:        role,
		DisplayName: displayName,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
		TokenID:     uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		TripID:      tripID.String(),
		MemberID:    memberID.String(),
		Role:        string(role),
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.TokenID,
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session token")
	}
	return signed, claims, nil
}

// Verify checks structure, signature, issuer and expiry. Failures carry either
// TOKEN_INVALID or TOKEN_EXPIRED; an expired token must not be refreshed.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, invalid()
	}

	raw := new(tokenClaims)
	_, err := jwt.ParseWithClaims(tokenString, raw, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && s.signatureValid(tokenString) {
			return nil, dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonTokenExpired, "session expired, please sign in again")
		}
		return nil, invalid()
	}

	return toClaims(raw)
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, errors.New("unexpected signing algorithm")
	}
	return s.signingKey, nil
}

// signatureValid confirms an expired token was really ours, signature and
// issuer, before reporting it as expired rather than invalid.
func (s *Service) signatureValid(tokenString string) bool {
	raw := new(tokenClaims)
	_, err := jwt.ParseWithClaims(tokenString, raw, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return err == nil && raw.Issuer == s.issuer
}

func toClaims(raw *tokenClaims) (*Claims, error) {
	tripID, err := id.ParseTripID(raw.TripID)
	if err != nil {
		return nil, invalid()
	}
	memberID, err := id.ParseMemberID(raw.MemberID)
	if err != nil {
		return nil, invalid()
	}
	role, err := models.ParseRole(raw.Role)
	if err != nil {
		return nil, invalid()
	}
	claims := &Claims{
		TripID:      tripID,
		MemberID:    memberID,
		Role:        role,
		DisplayName: raw.DisplayName,
		TokenID:     raw.ID,
	}
	if raw.IssuedAt != nil {
		claims.IssuedAt = raw.IssuedAt.Time
	}
	if raw.ExpiresAt != nil {
		claims.ExpiresAt = raw.ExpiresAt.Time
	}
	return claims, nil
}

func invalid() error {
	return dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonTokenInvalid, "invalid session, please sign in again")
}
