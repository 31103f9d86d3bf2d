// Package credential owns the trip PIN: issuing it at bootstrap, rotating it,
// and resolving a submitted PIN to the trip it unlocks.
package credential

import (
	"context"
	"errors"
	"log/slog"

	"tripkey/internal/credential/models"
	"tripkey/internal/platform/tracer"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/sentinel"
	"tripkey/pkg/requestcontext"
	"tripkey/pkg/secrets"
)

// Store persists one credential per trip.
type Store interface {
	Create(ctx context.Context, cred *models.Credential) error
	Find(ctx context.Context, tripID id.TripID) (*models.Credential, error)
	Replace(ctx context.Context, cred *models.Credential) error
	ListOrdered(ctx context.Context) ([]*models.Credential, error)
}

// Issuer creates and rotates trip PINs. Plaintext leaves it exactly once, as
// the return value of Create or Rotate.
type Issuer struct {
	store    Store
	hashCost int
	logger   *slog.Logger
	tracer   tracer.Tracer
}

type Option func(*Issuer)

// WithHashCost sets the bcrypt cost; zero means bcrypt.DefaultCost.
func WithHashCost(cost int) Option {
	return func(i *Issuer) {
		i.hashCost = cost
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(i *Issuer) {
		i.tracer = t
	}
}

func NewIssuer(store Store, opts ...Option) *Issuer {
	i := &Issuer{
		store:  store,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// PendingPIN is a generated PIN whose hash has not been stored yet.
type PendingPIN struct {
	pin  string
	hash string
}

// PIN returns the plaintext, to be shown to the trip creator once.
func (p *PendingPIN) PIN() string { return p.pin }

// Prepare generates and hashes a PIN without touching the store, so the bcrypt
// work and any hashing failure happen before a bootstrap transaction opens.
func (i *Issuer) Prepare() (*PendingPIN, error) {
	pin, hash, err := i.generate()
	if err != nil {
		return nil, err
	}
	return &PendingPIN{pin: pin, hash: hash}, nil
}

// Store saves a prepared PIN as the trip's first credential.
func (i *Issuer) Store(ctx context.Context, tripID id.TripID, p *PendingPIN) error {
	now := requestcontext.Now(ctx)
	cred := &models.Credential{
		TripID:    tripID,
		Hash:      p.hash,
		CreatedAt: now,
		RotatedAt: now,
	}
	if err := i.store.Create(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "trip already has a pin")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store pin")
	}
	return nil
}

// Create issues the first PIN for a trip.
func (i *Issuer) Create(ctx context.Context, tripID id.TripID) (string, error) {
	p, err := i.Prepare()
	if err != nil {
		return "", err
	}
	if err := i.Store(ctx, tripID, p); err != nil {
		return "", err
	}
	return p.PIN(), nil
}

// Rotate replaces a trip's PIN. The previous PIN stops verifying as soon as the
// replacement is stored. Existing session tokens are not affected.
func (i *Issuer) Rotate(ctx context.Context, tripID id.TripID, actorID id.MemberID) (pin string, err error) {
	ctx, span := i.tracer.Start(ctx, tracer.SpanRotate,
		tracer.ID(tracer.AttrTripID, tripID),
		tracer.ID(tracer.AttrMemberID, actorID),
	)
	defer func() { span.End(err) }()

	cred, err := i.store.Find(ctx, tripID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "trip not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pin")
	}

	pin, hash, err := i.generate()
	if err != nil {
		return "", err
	}
	cred.Replace(hash, actorID, requestcontext.Now(ctx))

	if err := i.store.Replace(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "trip not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store pin")
	}

	i.logger.InfoContext(ctx, "pin rotated",
		"trip_id", tripID.String(),
		"actor_id", actorID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return pin, nil
}

// Verify checks pin against the trip's stored hash.
func (i *Issuer) Verify(ctx context.Context, tripID id.TripID, pin string) error {
	cred, err := i.store.Find(ctx, tripID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "trip not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pin")
	}
	return secrets.VerifyPIN(pin, cred.Hash)
}

func (i *Issuer) generate() (pin, hash string, err error) {
	pin, err = secrets.GeneratePIN()
	if err != nil {
		return "", "", err
	}
	hash, err = secrets.HashPIN(pin, i.hashCost)
	if err != nil {
		return "", "", err
	}
	return pin, hash, nil
}
