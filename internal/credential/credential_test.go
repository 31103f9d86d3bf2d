package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"tripkey/internal/credential/models"
	"tripkey/internal/credential/store"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/requestcontext"
	"tripkey/pkg/secrets"
)

type CredentialSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.InMemory
	issuer   *Issuer
	resolver *LinearScanResolver
}

func TestCredentialSuite(t *testing.T) {
	suite.Run(t, new(CredentialSuite))
}

func (s *CredentialSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.issuer = NewIssuer(s.store, WithHashCost(bcrypt.MinCost))
	s.resolver = NewLinearScanResolver(s.store, nil)
}

// seedPIN stores a known plaintext so tests can submit it.
func (s *CredentialSuite) seedPIN(tripID id.TripID, pin string, createdAt time.Time) {
	hash, err := secrets.HashPIN(pin, bcrypt.MinCost)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, &models.Credential{
		TripID: tripID, Hash: hash, CreatedAt: createdAt, RotatedAt: createdAt,
	}))
}

func (s *CredentialSuite) TestCreate_StoresOnlyHash() {
	tripID := id.NewTripID()
	pin, err := s.issuer.Create(s.ctx, tripID)
	s.Require().NoError(err)
	s.True(secrets.IsPIN(pin))

	cred, err := s.store.Find(s.ctx, tripID)
	s.Require().NoError(err)
	s.NotEqual(pin, cred.Hash)
	s.Nil(cred.RotatedBy)
	s.NoError(s.issuer.Verify(s.ctx, tripID, pin))

	_, err = s.issuer.Create(s.ctx, tripID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *CredentialSuite) TestRotate_OldPINStopsVerifying() {
	tripID := id.NewTripID()
	s.seedPIN(tripID, "482913", time.Now())
	actor := id.NewMemberID()

	newPIN, err := s.issuer.Rotate(s.ctx, tripID, actor)
	s.Require().NoError(err)
	s.True(secrets.IsPIN(newPIN))

	err = s.issuer.Verify(s.ctx, tripID, "482913")
	if newPIN != "482913" {
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "old pin must fail after rotation")
	}
	s.NoError(s.issuer.Verify(s.ctx, tripID, newPIN))

	cred, err := s.store.Find(s.ctx, tripID)
	s.Require().NoError(err)
	s.Require().NotNil(cred.RotatedBy)
	s.Equal(actor, *cred.RotatedBy)
	s.Equal(requestcontext.Now(s.ctx), cred.RotatedAt)
}

func (s *CredentialSuite) TestRotate_UnknownTrip() {
	_, err := s.issuer.Rotate(s.ctx, id.NewTripID(), id.NewMemberID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CredentialSuite) TestRotate_StorageFailureIsInternal() {
	tripID := id.NewTripID()
	s.seedPIN(tripID, "482913", time.Now())
	issuer := NewIssuer(failingReplace{s.store}, WithHashCost(bcrypt.MinCost))

	_, err := issuer.Rotate(s.ctx, tripID, id.NewMemberID())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.NoError(s.issuer.Verify(s.ctx, tripID, "482913"), "failed rotation keeps the old pin")
}

func (s *CredentialSuite) TestResolve_ScopedToTrip() {
	tripID := id.NewTripID()
	s.seedPIN(tripID, "482913", time.Now())

	got, err := s.resolver.Resolve(s.ctx, "482913", &tripID)
	s.Require().NoError(err)
	s.Equal(tripID, got)

	_, err = s.resolver.Resolve(s.ctx, "482914", &tripID)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(dErrors.ReasonInvalidPIN, dErrors.ReasonOf(err))

	unknown := id.NewTripID()
	_, err = s.resolver.Resolve(s.ctx, "482913", &unknown)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CredentialSuite) TestResolve_ScanFirstMatchWins() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older, newer, other := id.NewTripID(), id.NewTripID(), id.NewTripID()
	s.seedPIN(newer, "111111", base.Add(2*time.Hour))
	s.seedPIN(other, "222222", base.Add(time.Hour))
	s.seedPIN(older, "111111", base)

	got, err := s.resolver.Resolve(s.ctx, "111111", nil)
	s.Require().NoError(err)
	s.Equal(older, got, "scan runs in creation order")

	got, err = s.resolver.Resolve(s.ctx, "222222", nil)
	s.Require().NoError(err)
	s.Equal(other, got)

	_, err = s.resolver.Resolve(s.ctx, "333333", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *CredentialSuite) TestResolve_RejectsMalformedPIN() {
	for _, pin := range []string{"", "12345", "1234567", "12a456"} {
		_, err := s.resolver.Resolve(s.ctx, pin, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), pin)
	}
}

func TestResolve_EmptyDirectory(t *testing.T) {
	r := NewLinearScanResolver(store.NewInMemory(), nil)
	_, err := r.Resolve(context.Background(), "000000", nil)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

type failingReplace struct {
	*store.InMemory
}

func (failingReplace) Replace(context.Context, *models.Credential) error {
	return errors.New("connection reset")
}
