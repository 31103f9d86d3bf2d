package access

import (
	"context"
	"errors"

	"tripkey/internal/directory/models"
	"tripkey/internal/platform/tracer"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/sentinel"
)

// SignInAgain is the user-facing message for every state-drift rejection.
const SignInAgain = "please sign in again"

// Directory is the read side of the trip and membership directory.
type Directory interface {
	FindTrip(ctx context.Context, tripID id.TripID) (*models.Trip, error)
	FindMember(ctx context.Context, tripID id.TripID, memberID id.MemberID) (*models.Member, error)
}

// Authorizer re-validates token claims against the current directory state.
type Authorizer struct {
	directory Directory
	tracer    tracer.Tracer
}

func NewAuthorizer(directory Directory, t tracer.Tracer) *Authorizer {
	if t == nil {
		t = tracer.NewNoop()
	}
	return &Authorizer{directory: directory, tracer: t}
}

// Authorize checks, in order: the trip exists, the live role matches the
// token's role, the member exists, and the member is active. Each failure
// carries its own reason.
func (a *Authorizer) Authorize(ctx context.Context, hint *TokenHint) (auth *AuthContext, err error) {
	ctx, span := a.tracer.Start(ctx, tracer.SpanLiveState,
		tracer.ID(tracer.AttrTripID, hint.TripID),
		tracer.ID(tracer.AttrMemberID, hint.MemberID),
	)
	defer func() {
		if reason := dErrors.ReasonOf(err); reason != "" {
			span.SetAttributes(tracer.String(tracer.AttrReason, string(reason)))
		}
		span.End(err)
	}()

	trip, err := a.directory.FindTrip(ctx, hint.TripID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, reject(dErrors.ReasonTripNotFound)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trip")
	}

	liveRole, hasRole := trip.RoleOf(hint.MemberID)
	if hasRole && liveRole != hint.Role {
		return nil, reject(dErrors.ReasonRoleMismatch)
	}

	member, err := a.directory.FindMember(ctx, hint.TripID, hint.MemberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, reject(dErrors.ReasonMemberNotFound)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}

	switch member.State {
	case models.MemberStateActive:
	case models.MemberStateRemoved:
		return nil, reject(dErrors.ReasonMemberInactive)
	default:
		// Unknown states never authorize.
		return nil, reject(dErrors.ReasonMemberInactive)
	}

	// An active member without a role entry means the role map drifted.
	if !hasRole {
		return nil, reject(dErrors.ReasonRoleMismatch)
	}

	return &AuthContext{
		TripID:      trip.ID,
		MemberID:    member.ID,
		Role:        liveRole,
		DisplayName: member.DisplayName,
		IsCreator:   member.IsCreator,
		IsChild:     member.IsChild,
		JoinedAt:    member.JoinedAt,
	}, nil
}

func reject(reason dErrors.Reason) error {
	return dErrors.NewWithReason(dErrors.CodeUnauthorized, reason, SignInAgain)
}
