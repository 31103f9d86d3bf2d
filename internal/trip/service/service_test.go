package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"tripkey/internal/access"
	"tripkey/internal/credential"
	credmodels "tripkey/internal/credential/models"
	credstore "tripkey/internal/credential/store"
	"tripkey/internal/directory/models"
	dirstore "tripkey/internal/directory/store"
	"tripkey/internal/notification"
	"tripkey/internal/session"
	tripmetrics "tripkey/internal/trip/metrics"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/sentinel"
	"tripkey/pkg/requestcontext"
	"tripkey/pkg/secrets"
	fixtures "tripkey/pkg/testutil"
)

const knownPIN = "482913"

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	directory *dirstore.InMemory
	creds     *credstore.InMemory
	sessions  *session.Service
	feed      *notification.MemoryFeed
	metrics   *tripmetrics.Metrics
	svc       *Service

	trip    *models.Trip
	creator *models.Member
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), fixtures.FixedNow)
	s.directory = dirstore.NewInMemory()
	s.creds = credstore.NewInMemory()
	s.sessions = session.New("test-signing-key", "tripkey-test", 0,
		session.WithClock(func() time.Time { return fixtures.FixedNow }))
	s.feed = notification.NewMemoryFeed(10)
	s.metrics = tripmetrics.New(prometheus.NewRegistry())

	issuer := credential.NewIssuer(s.creds, credential.WithHashCost(bcrypt.MinCost))
	s.svc = New(s.directory, issuer, credential.NewLinearScanResolver(s.creds, nil), s.sessions,
		WithMetrics(s.metrics),
		WithNotifier(notification.NewBestEffort(s.feed, slog.Default())),
	)

	trip, members := fixtures.NewTripBuilder().Build()
	s.seedTrip(trip, members, knownPIN)
	s.trip, s.creator = trip, members[0]
}

func (s *ServiceSuite) seedTrip(trip *models.Trip, members []*models.Member, pin string) {
	require.NoError(s.T(), s.directory.CreateTrip(s.ctx, trip))
	for _, m := range members {
		require.NoError(s.T(), s.directory.CreateMember(s.ctx, m))
	}
	hash, err := secrets.HashPIN(pin, bcrypt.MinCost)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.creds.Create(s.ctx, &credmodels.Credential{
		TripID: trip.ID, Hash: hash, CreatedAt: trip.CreatedAt, RotatedAt: trip.CreatedAt,
	}))
}

func (s *ServiceSuite) authFor(m *models.Member) *access.AuthContext {
	return &access.AuthContext{
		TripID:      m.TripID,
		MemberID:    m.ID,
		Role:        m.Role,
		DisplayName: m.DisplayName,
		IsCreator:   m.IsCreator,
		IsChild:     m.IsChild,
		JoinedAt:    m.JoinedAt,
	}
}

func (s *ServiceSuite) join(name string) *JoinResult {
	res, err := s.svc.Join(s.ctx, JoinCommand{PIN: knownPIN, DisplayName: name})
	require.NoError(s.T(), err)
	return res
}

func (s *ServiceSuite) TestCreateTrip() {
	res, err := s.svc.CreateTrip(s.ctx, CreateTripCommand{
		Name:        "  Alps  ",
		StartDate:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC),
		Timezone:    "Europe/Zurich",
		DisplayName: "Bo",
	})
	s.Require().NoError(err)

	s.Equal("Alps", res.Trip.Name)
	s.True(res.Member.IsCreator)
	s.Equal(models.RoleElevated, res.Member.Role)
	s.Equal(res.Member.ID, res.Trip.CreatorID)
	s.Equal(1, res.Trip.MemberCount)
	s.True(secrets.IsPIN(res.PIN))
	s.NotEmpty(res.Session.Token)

	claims, err := s.sessions.Verify(res.Session.Token)
	s.Require().NoError(err)
	s.Equal(res.Trip.ID, claims.TripID)
	s.Equal(models.RoleElevated, claims.Role)

	cred, err := s.creds.Find(s.ctx, res.Trip.ID)
	s.Require().NoError(err)
	s.Require().NoError(secrets.VerifyPIN(res.PIN, cred.Hash))
	s.NotContains(cred.Hash, res.PIN)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.TripsCreated))
}

func (s *ServiceSuite) TestCreateTripRejectsInvertedDates() {
	_, err := s.svc.CreateTrip(s.ctx, CreateTripCommand{
		Name:        "Backwards",
		StartDate:   time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Timezone:    "UTC",
		DisplayName: "Bo",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestJoinWithValidPIN() {
	res := s.join("Alice")

	s.Equal(s.trip.ID, res.Trip.ID)
	s.Equal(models.RoleStandard, res.Member.Role)
	s.False(res.Member.IsCreator)
	s.Equal(2, res.Trip.MemberCount)
	role, ok := res.Trip.RoleOf(res.Member.ID)
	s.True(ok)
	s.Equal(models.RoleStandard, role)

	claims, err := s.sessions.Verify(res.Session.Token)
	s.Require().NoError(err)
	s.Equal(res.Member.ID, claims.MemberID)
	s.Equal("Alice", claims.DisplayName)

	stored, err := s.directory.FindTrip(s.ctx, s.trip.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.MemberCount)

	events := s.feed.Recent(s.trip.ID)
	s.Require().Len(events, 1)
	s.Equal(notification.TypeMemberJoined, events[0].Type)
	s.Equal("Alice", events[0].DisplayName)
}

func (s *ServiceSuite) TestJoinScopedToTrip() {
	tripID := s.trip.ID
	res, err := s.svc.Join(s.ctx, JoinCommand{PIN: knownPIN, TripID: &tripID, DisplayName: "Alice"})
	s.Require().NoError(err)
	s.Equal(tripID, res.Trip.ID)

	other := id.NewTripID()
	_, err = s.svc.Join(s.ctx, JoinCommand{PIN: knownPIN, TripID: &other, DisplayName: "Bea"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestJoinWithWrongPIN() {
	_, err := s.svc.Join(s.ctx, JoinCommand{PIN: "000001", DisplayName: "Alice"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	members, err := s.directory.ListActiveMembers(s.ctx, s.trip.ID)
	s.Require().NoError(err)
	s.Len(members, 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Joins.WithLabelValues("invalid_pin")))
}

func (s *ServiceSuite) TestJoinRejectsMalformedPIN() {
	for _, pin := range []string{"", "48291", "4829134", "48291a", "４８２９１３"} {
		_, err := s.svc.Join(s.ctx, JoinCommand{PIN: pin, DisplayName: "Alice"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "pin %q", pin)
	}
}

func (s *ServiceSuite) TestJoinRejectsDuplicateActiveName() {
	s.join("Alice")

	_, err := s.svc.Join(s.ctx, JoinCommand{PIN: knownPIN, DisplayName: "Alice"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "name already exists")

	// Matching is case-sensitive.
	s.join("alice")
}

func (s *ServiceSuite) TestJoinAfterRemovalReusesName() {
	alice := s.join("Alice")
	_, err := s.svc.RemoveMember(s.ctx, s.authFor(s.creator), alice.Member.ID)
	s.Require().NoError(err)

	again := s.join("Alice")
	s.NotEqual(alice.Member.ID, again.Member.ID)
}

func (s *ServiceSuite) TestConcurrentJoinsWithSameName() {
	result := fixtures.RunConcurrent(8, func(int) error {
		_, err := s.svc.Join(s.ctx, JoinCommand{PIN: knownPIN, DisplayName: "Alice"})
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(7), result.Conflicts, "%v", result.Errs)
	stored, err := s.directory.FindTrip(s.ctx, s.trip.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.MemberCount)
}

func (s *ServiceSuite) TestJoinSurvivesNotificationFailure() {
	issuer := credential.NewIssuer(s.creds, credential.WithHashCost(bcrypt.MinCost))
	svc := New(s.directory, issuer, credential.NewLinearScanResolver(s.creds, nil), s.sessions,
		WithNotifier(notification.NewBestEffort(failingPublisher{}, slog.Default())))

	res, err := svc.Join(s.ctx, JoinCommand{PIN: knownPIN, DisplayName: "Alice"})
	s.Require().NoError(err)
	s.NotEmpty(res.Session.Token)
}

func (s *ServiceSuite) TestValidateSession() {
	alice := s.join("Alice")

	view, err := s.svc.ValidateSession(s.ctx, s.authFor(alice.Member))
	s.Require().NoError(err)
	s.Equal(alice.Member.ID, view.Member.ID)
	s.Equal(2, view.Trip.MemberCount)
}

func (s *ServiceSuite) TestListMembersExcludesRemoved() {
	alice := s.join("Alice")
	s.join("Bea")
	_, err := s.svc.RemoveMember(s.ctx, s.authFor(s.creator), alice.Member.ID)
	s.Require().NoError(err)

	members, err := s.svc.ListMembers(s.ctx, s.authFor(s.creator))
	s.Require().NoError(err)
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.DisplayName)
	}
	s.ElementsMatch([]string{"Organizer", "Bea"}, names)
}

func (s *ServiceSuite) TestRotatePIN() {
	pin, err := s.svc.RotatePIN(s.ctx, s.authFor(s.creator))
	s.Require().NoError(err)
	s.True(secrets.IsPIN(pin))

	if pin != knownPIN {
		_, err = s.svc.Join(s.ctx, JoinCommand{PIN: knownPIN, DisplayName: "Late"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
	_, err = s.svc.Join(s.ctx, JoinCommand{PIN: pin, DisplayName: "OnTime"})
	s.Require().NoError(err)

	cred, err := s.creds.Find(s.ctx, s.trip.ID)
	s.Require().NoError(err)
	s.Require().NotNil(cred.RotatedBy)
	s.Equal(s.creator.ID, *cred.RotatedBy)
}

func (s *ServiceSuite) TestRotatePINRequiresElevated() {
	alice := s.join("Alice")
	_, err := s.svc.RotatePIN(s.ctx, s.authFor(alice.Member))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestRemoveMember() {
	alice := s.join("Alice")

	removed, err := s.svc.RemoveMember(s.ctx, s.authFor(s.creator), alice.Member.ID)
	s.Require().NoError(err)
	s.Equal(models.MemberStateRemoved, removed.State)
	s.Require().NotNil(removed.RemovedAt)

	trip, err := s.directory.FindTrip(s.ctx, s.trip.ID)
	s.Require().NoError(err)
	s.Equal(1, trip.MemberCount)
	_, ok := trip.RoleOf(alice.Member.ID)
	s.False(ok)

	// Alice's token still verifies, but the live check now rejects her.
	claims, err := s.sessions.Verify(alice.Session.Token)
	s.Require().NoError(err)
	_, err = access.NewAuthorizer(s.directory, nil).Authorize(s.ctx, &access.TokenHint{
		TripID: claims.TripID, MemberID: claims.MemberID, Role: claims.Role,
	})
	s.Equal(dErrors.ReasonMemberInactive, dErrors.ReasonOf(err))

	events := s.feed.Recent(s.trip.ID)
	s.Require().Len(events, 2)
	s.Equal(notification.TypeMemberRemoved, events[1].Type)
}

func (s *ServiceSuite) TestRemoveMemberGuards() {
	alice := s.join("Alice")
	bea := s.join("Bea")
	organizer := s.authFor(s.creator)

	s.Run("self", func() {
		_, err := s.svc.RemoveMember(s.ctx, organizer, s.creator.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("standard actor", func() {
		_, err := s.svc.RemoveMember(s.ctx, s.authFor(alice.Member), bea.Member.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("unknown target", func() {
		_, err := s.svc.RemoveMember(s.ctx, organizer, id.NewMemberID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("already removed", func() {
		_, err := s.svc.RemoveMember(s.ctx, organizer, bea.Member.ID)
		s.Require().NoError(err)
		_, err = s.svc.RemoveMember(s.ctx, organizer, bea.Member.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestRemoveMemberOfAnotherTrip() {
	other, members := fixtures.NewTripBuilder().
		WithID(fixtures.TestIDs.TripID2).
		WithCreatorID(fixtures.TestIDs.MemberID2).
		WithMember(fixtures.TestIDs.MemberID3, "Cy").
		Build()
	s.seedTrip(other, members, "135790")

	_, err := s.svc.RemoveMember(s.ctx, s.authFor(s.creator), fixtures.TestIDs.MemberID3)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRemoveCreatorIsForbidden(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), fixtures.FixedNow)
	directory := dirstore.NewInMemory()
	trip, members := fixtures.NewTripBuilder().WithMember(fixtures.TestIDs.MemberID2, "Co-organizer").Build()
	// A second elevated member cannot remove the creator.
	members[1].Role = models.RoleElevated
	trip.RoleMap[members[1].ID] = models.RoleElevated
	require.NoError(t, directory.CreateTrip(ctx, trip))
	for _, m := range members {
		require.NoError(t, directory.CreateMember(ctx, m))
	}

	creds := credstore.NewInMemory()
	svc := New(directory, credential.NewIssuer(creds), credential.NewLinearScanResolver(creds, nil),
		session.New("k", "tripkey-test", 0))

	_, err := svc.RemoveMember(ctx, &access.AuthContext{
		TripID: trip.ID, MemberID: members[1].ID, Role: models.RoleElevated,
	}, trip.CreatorID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, notification.Event) error {
	return errors.New("broker unavailable")
}

func (s *ServiceSuite) TestValidateSessionAfterRemovalIsMemberInactive() {
	alice := s.join("Alice")
	auth := s.authFor(alice.Member)
	_, err := s.svc.RemoveMember(s.ctx, s.authFor(s.creator), alice.Member.ID)
	s.Require().NoError(err)

	_, err = s.svc.ValidateSession(s.ctx, auth)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(dErrors.ReasonMemberInactive, dErrors.ReasonOf(err))
}

func (s *ServiceSuite) TestValidateSessionForVanishedRecords() {
	ghost := s.authFor(s.creator)
	ghost.MemberID = id.NewMemberID()
	_, err := s.svc.ValidateSession(s.ctx, ghost)
	s.Equal(dErrors.ReasonMemberNotFound, dErrors.ReasonOf(err))

	ghost.TripID = id.NewTripID()
	_, err = s.svc.ValidateSession(s.ctx, ghost)
	s.Equal(dErrors.ReasonTripNotFound, dErrors.ReasonOf(err))
}

// failingCredentialStore accepts reads but refuses to save a credential.
type failingCredentialStore struct {
	*credstore.InMemory
	attempted []id.TripID
}

func (f *failingCredentialStore) Create(_ context.Context, cred *credmodels.Credential) error {
	f.attempted = append(f.attempted, cred.TripID)
	return errors.New("store down")
}

// countingDirectory counts trip inserts.
type countingDirectory struct {
	*dirstore.InMemory
	tripCreates int
}

func (c *countingDirectory) CreateTrip(ctx context.Context, trip *models.Trip) error {
	c.tripCreates++
	return c.InMemory.CreateTrip(ctx, trip)
}

func (s *ServiceSuite) newBootstrapService(directory DirectoryStore, creds credential.Store, cost int) *Service {
	return New(directory, credential.NewIssuer(creds, credential.WithHashCost(cost)),
		credential.NewLinearScanResolver(creds, nil), s.sessions)
}

func (s *ServiceSuite) bootstrapCommand() CreateTripCommand {
	return CreateTripCommand{
		Name:        "Azores",
		StartDate:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC),
		Timezone:    "Atlantic/Azores",
		DisplayName: "Bo",
	}
}

func (s *ServiceSuite) TestCreateTripRollsBackWhenPINCannotBeStored() {
	directory := dirstore.NewInMemory()
	creds := &failingCredentialStore{InMemory: credstore.NewInMemory()}
	svc := s.newBootstrapService(directory, creds, bcrypt.MinCost)

	_, err := svc.CreateTrip(s.ctx, s.bootstrapCommand())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	s.Require().Len(creds.attempted, 1)
	tripID := creds.attempted[0]
	_, err = directory.FindTrip(s.ctx, tripID)
	s.ErrorIs(err, sentinel.ErrNotFound, "no trip may survive a failed bootstrap")
	_, err = directory.ListActiveMembers(s.ctx, tripID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestCreateTripHashFailureWritesNothing() {
	directory := &countingDirectory{InMemory: dirstore.NewInMemory()}
	creds := &failingCredentialStore{InMemory: credstore.NewInMemory()}
	svc := s.newBootstrapService(directory, creds, bcrypt.MaxCost+1)

	_, err := svc.CreateTrip(s.ctx, s.bootstrapCommand())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Zero(directory.tripCreates)
	s.Empty(creds.attempted)
}

func (s *ServiceSuite) TestInMemoryTxUndoesWritesOnError() {
	tx := NewInMemoryStoreTx()
	trip, members := fixtures.NewTripBuilder().WithID(fixtures.TestIDs.TripID2).Build()
	bea := s.join("Bea")

	err := tx.RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.directory.CreateTrip(ctx, trip))
		s.Require().NoError(s.directory.CreateMember(ctx, members[0]))

		removed := bea.Member.Clone()
		s.Require().NoError(removed.Remove(fixtures.FixedNow))
		s.Require().NoError(s.directory.UpdateMember(ctx, removed))

		stored, err := s.directory.FindTrip(ctx, s.trip.ID)
		s.Require().NoError(err)
		s.Require().NoError(stored.Evict(bea.Member.ID, fixtures.FixedNow))
		s.Require().NoError(s.directory.UpdateTrip(ctx, stored))

		s.Require().NoError(s.creds.Replace(ctx, &credmodels.Credential{
			TripID: s.trip.ID, Hash: "replaced", CreatedAt: s.trip.CreatedAt, RotatedAt: fixtures.FixedNow,
		}))
		return errors.New("abort")
	})
	s.Require().Error(err)

	_, err = s.directory.FindTrip(s.ctx, trip.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	member, err := s.directory.FindMember(s.ctx, s.trip.ID, bea.Member.ID)
	s.Require().NoError(err)
	s.True(member.IsActive())
	stored, err := s.directory.FindTrip(s.ctx, s.trip.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.MemberCount)
	_, ok := stored.RoleOf(bea.Member.ID)
	s.True(ok)
	cred, err := s.creds.Find(s.ctx, s.trip.ID)
	s.Require().NoError(err)
	s.Require().NoError(secrets.VerifyPIN(knownPIN, cred.Hash))
}
