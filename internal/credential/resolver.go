package credential

import (
	"context"
	"errors"

	"tripkey/internal/platform/tracer"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/sentinel"
	"tripkey/pkg/secrets"
)

// CredentialResolver maps a submitted PIN to the trip it unlocks. When tripID
// is nil the resolver decides which trips to try.
type CredentialResolver interface {
	Resolve(ctx context.Context, pin string, tripID *id.TripID) (id.TripID, error)
}

// LinearScanResolver verifies the PIN against every trip's hash in creation
// order and stops at the first match. Cost grows with trip count times the
// bcrypt cost; an indexed resolver can replace it behind CredentialResolver.
type LinearScanResolver struct {
	store  Store
	tracer tracer.Tracer
}

func NewLinearScanResolver(store Store, t tracer.Tracer) *LinearScanResolver {
	if t == nil {
		t = tracer.NewNoop()
	}
	return &LinearScanResolver{store: store, tracer: t}
}

func (r *LinearScanResolver) Resolve(ctx context.Context, pin string, tripID *id.TripID) (resolved id.TripID, err error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanPINResolve, tracer.Bool(tracer.AttrScoped, tripID != nil))
	defer func() { span.End(err) }()

	if !secrets.IsPIN(pin) {
		return id.TripID{}, dErrors.New(dErrors.CodeValidation, "pin must be exactly 6 digits")
	}

	if tripID != nil {
		cred, err := r.store.Find(ctx, *tripID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return id.TripID{}, dErrors.New(dErrors.CodeNotFound, "trip not found")
			}
			return id.TripID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pin")
		}
		if err := secrets.VerifyPIN(pin, cred.Hash); err != nil {
			return id.TripID{}, err
		}
		return *tripID, nil
	}

	creds, err := r.store.ListOrdered(ctx)
	if err != nil {
		return id.TripID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pins")
	}
	span.SetAttributes(tracer.Int(tracer.AttrCandidates, len(creds)))

	for n, cred := range creds {
		err := secrets.VerifyPIN(pin, cred.Hash)
		if err == nil {
			span.SetAttributes(tracer.Int(tracer.AttrComparisons, n+1), tracer.Bool(tracer.AttrMatched, true))
			return cred.TripID, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return id.TripID{}, err
		}
	}
	span.SetAttributes(tracer.Int(tracer.AttrComparisons, len(creds)), tracer.Bool(tracer.AttrMatched, false))
	return id.TripID{}, dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidPIN, "invalid pin")
}

var _ CredentialResolver = (*LinearScanResolver)(nil)
