package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tripkey/internal/access"
	"tripkey/internal/credential"
	"tripkey/internal/directory/models"
	"tripkey/internal/notification"
	"tripkey/internal/session"
	tripmetrics "tripkey/internal/trip/metrics"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/sentinel"
	"tripkey/pkg/requestcontext"
)

// DirectoryStore is the trip and membership directory.
type DirectoryStore interface {
	CreateTrip(ctx context.Context, trip *models.Trip) error
	FindTrip(ctx context.Context, tripID id.TripID) (*models.Trip, error)
	UpdateTrip(ctx context.Context, trip *models.Trip) error
	CreateMember(ctx context.Context, member *models.Member) error
	FindMember(ctx context.Context, tripID id.TripID, memberID id.MemberID) (*models.Member, error)
	UpdateMember(ctx context.Context, member *models.Member) error
	ListActiveMembers(ctx context.Context, tripID id.TripID) ([]*models.Member, error)
}

// CredentialIssuer creates and rotates trip PINs. Prepare does the hashing so
// that only Store runs inside the bootstrap transaction.
type CredentialIssuer interface {
	Prepare() (*credential.PendingPIN, error)
	Store(ctx context.Context, tripID id.TripID, pin *credential.PendingPIN) error
	Rotate(ctx context.Context, tripID id.TripID, actorID id.MemberID) (string, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, tripID id.TripID, memberID id.MemberID, role models.Role, displayName string) (string, *session.Claims, error)
}

// Notifier delivers best-effort events; it never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, ev notification.Event)
}

// Service runs the trip access flows: bootstrap, join, session validation,
// PIN rotation and member removal.
type Service struct {
	directory   DirectoryStore
	credentials CredentialIssuer
	resolver    credential.CredentialResolver
	tokens      TokenIssuer
	notifier    Notifier
	tx          StoreTx
	logger      *slog.Logger
	metrics     *tripmetrics.Metrics
}

func New(
	directory DirectoryStore,
	credentials CredentialIssuer,
	resolver credential.CredentialResolver,
	tokens TokenIssuer,
	opts ...Option,
) *Service {
	s := &Service{
		directory:   directory,
		credentials: credentials,
		resolver:    resolver,
		tokens:      tokens,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewInMemoryStoreTx()
	}
	if s.notifier == nil {
		s.notifier = notification.NewBestEffort(notification.NewMemoryFeed(0), s.logger)
	}
	return s
}

// CreateTrip bootstraps a trip, its creator and its PIN in one transaction.
func (s *Service) CreateTrip(ctx context.Context, cmd CreateTripCommand) (*CreateTripResult, error) {
	// A started mutation completes even if the client goes away.
	ctx = context.WithoutCancel(ctx)
	now := requestcontext.Now(ctx)

	trip, creator, err := models.NewTrip(id.NewTripID(), strings.TrimSpace(cmd.Name),
		cmd.StartDate, cmd.EndDate, cmd.Timezone, strings.TrimSpace(cmd.DisplayName), now)
	if err != nil {
		return nil, err
	}

	pending, err := s.credentials.Prepare()
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.directory.CreateTrip(txCtx, trip); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create trip")
		}
		if err := s.directory.CreateMember(txCtx, creator); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create trip creator")
		}
		return s.credentials.Store(txCtx, trip.ID, pending)
	})
	if err != nil {
		return nil, err
	}

	sess, err := s.issue(ctx, creator)
	if err != nil {
		return nil, err
	}

	s.metrics.IncTripCreated()
	s.logger.InfoContext(ctx, "trip created",
		"trip_id", trip.ID.String(),
		"creator_id", creator.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &CreateTripResult{Trip: trip, Member: creator, Session: sess, PIN: pending.PIN()}, nil
}

// Join resolves a PIN to a trip and admits a new standard member.
func (s *Service) Join(ctx context.Context, cmd JoinCommand) (*JoinResult, error) {
	ctx = context.WithoutCancel(ctx)
	displayName := strings.TrimSpace(cmd.DisplayName)

	start := time.Now()
	tripID, err := s.resolver.Resolve(ctx, cmd.PIN, cmd.TripID)
	s.metrics.ObserveResolve(start)
	if err != nil {
		s.metrics.IncJoin(joinOutcome(err))
		return nil, err
	}

	now := requestcontext.Now(ctx)
	member, err := models.NewMember(id.NewMemberID(), tripID, displayName, models.RoleStandard, cmd.IsChild, now)
	if err != nil {
		s.metrics.IncJoin("invalid")
		return nil, err
	}

	var trip *models.Trip
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := s.directory.FindTrip(txCtx, tripID)
		if err != nil {
			return wrapStoreErr(err, "trip not found", "failed to load trip")
		}
		if err := s.directory.CreateMember(txCtx, member); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeValidation, "name already exists")
			}
			return wrapStoreErr(err, "trip not found", "failed to create member")
		}
		if err := t.Admit(member, now); err != nil {
			return err
		}
		if err := s.directory.UpdateTrip(txCtx, t); err != nil {
			return wrapStoreErr(err, "trip not found", "failed to update trip")
		}
		trip = t
		return nil
	})
	if err != nil {
		s.metrics.IncJoin(joinOutcome(err))
		return nil, err
	}

	ev := notification.NewEvent(notification.TypeMemberJoined, trip.ID, member.ID, member.DisplayName, now)
	ev.Device = notification.DeviceLabel(cmd.UserAgent)
	s.notifier.Notify(ctx, ev)

	sess, err := s.issue(ctx, member)
	if err != nil {
		return nil, err
	}
	s.metrics.IncJoin("success")
	s.logger.InfoContext(ctx, "member joined",
		"trip_id", trip.ID.String(),
		"member_id", member.ID.String(),
		"scoped", cmd.TripID != nil,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &JoinResult{Trip: trip, Member: member, Session: sess}, nil
}

// ValidateSession returns the live trip and member behind an authorized request.
// State that changed since the live-state check fails with the same auth
// reasons that check would have given.
func (s *Service) ValidateSession(ctx context.Context, auth *access.AuthContext) (*SessionView, error) {
	trip, err := s.directory.FindTrip(ctx, auth.TripID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonTripNotFound, access.SignInAgain)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trip")
	}
	member, err := s.directory.FindMember(ctx, auth.TripID, auth.MemberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonMemberNotFound, access.SignInAgain)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	if !member.IsActive() {
		return nil, dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonMemberInactive, access.SignInAgain)
	}
	return &SessionView{Trip: trip, Member: member}, nil
}

func (s *Service) GetTrip(ctx context.Context, auth *access.AuthContext) (*models.Trip, error) {
	trip, err := s.directory.FindTrip(ctx, auth.TripID)
	if err != nil {
		return nil, wrapStoreErr(err, "trip not found", "failed to load trip")
	}
	return trip, nil
}

func (s *Service) ListMembers(ctx context.Context, auth *access.AuthContext) ([]*models.Member, error) {
	members, err := s.directory.ListActiveMembers(ctx, auth.TripID)
	if err != nil {
		return nil, wrapStoreErr(err, "trip not found", "failed to list members")
	}
	return members, nil
}

// RotatePIN replaces the trip PIN and returns the new plaintext once.
// Sessions issued under the old PIN stay valid.
func (s *Service) RotatePIN(ctx context.Context, auth *access.AuthContext) (string, error) {
	if !auth.IsElevated() {
		return "", dErrors.New(dErrors.CodeForbidden, "only the trip organizer can do this")
	}
	ctx = context.WithoutCancel(ctx)

	pin, err := s.credentials.Rotate(ctx, auth.TripID, auth.MemberID)
	if err != nil {
		return "", err
	}
	s.metrics.IncPINRotation()
	s.notifier.Notify(ctx, notification.NewEvent(notification.TypePINRotated,
		auth.TripID, auth.MemberID, auth.DisplayName, requestcontext.Now(ctx)))
	return pin, nil
}

// RemoveMember soft-deletes a member. The member's existing tokens stop
// working on their next request because the live-state check sees Removed.
func (s *Service) RemoveMember(ctx context.Context, auth *access.AuthContext, targetID id.MemberID) (*models.Member, error) {
	if !auth.IsElevated() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the trip organizer can do this")
	}
	if targetID == auth.MemberID {
		return nil, dErrors.New(dErrors.CodeForbidden, "you cannot remove yourself")
	}
	ctx = context.WithoutCancel(ctx)
	now := requestcontext.Now(ctx)

	var removed *models.Member
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		trip, err := s.directory.FindTrip(txCtx, auth.TripID)
		if err != nil {
			return wrapStoreErr(err, "trip not found", "failed to load trip")
		}
		target, err := s.directory.FindMember(txCtx, auth.TripID, targetID)
		if err != nil {
			return wrapStoreErr(err, "member not found", "failed to load member")
		}
		if target.IsCreator {
			return dErrors.New(dErrors.CodeForbidden, "the trip creator cannot be removed")
		}
		if !target.IsActive() {
			return dErrors.New(dErrors.CodeNotFound, "member not found")
		}

		if err := target.Remove(now); err != nil {
			return err
		}
		if err := trip.Evict(target.ID, now); err != nil {
			return err
		}
		if err := s.directory.UpdateMember(txCtx, target); err != nil {
			return wrapStoreErr(err, "member not found", "failed to update member")
		}
		if err := s.directory.UpdateTrip(txCtx, trip); err != nil {
			return wrapStoreErr(err, "trip not found", "failed to update trip")
		}
		removed = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncMemberRemoved()
	s.notifier.Notify(ctx, notification.NewEvent(notification.TypeMemberRemoved,
		auth.TripID, removed.ID, removed.DisplayName, now))
	s.logger.InfoContext(ctx, "member removed",
		"trip_id", auth.TripID.String(),
		"member_id", removed.ID.String(),
		"actor_id", auth.MemberID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return removed, nil
}

func (s *Service) issue(ctx context.Context, m *models.Member) (Session, error) {
	token, claims, err := s.tokens.Issue(ctx, m.TripID, m.ID, m.Role, m.DisplayName)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

// wrapStoreErr translates store sentinels into domain errors once.
func wrapStoreErr(err error, notFoundMsg, internalMsg string) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

func joinOutcome(err error) string {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		return "error"
	}
	switch domainErr.Code {
	case dErrors.CodeUnauthorized:
		return "invalid_pin"
	case dErrors.CodeNotFound:
		return "unknown_trip"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "invalid"
	default:
		return "error"
	}
}
