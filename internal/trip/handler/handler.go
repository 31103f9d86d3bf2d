package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripkey/internal/access"
	"tripkey/internal/directory/models"
	"tripkey/internal/trip/service"
	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/httputil"
	"tripkey/pkg/requestcontext"
)

// Service defines the trip operations the HTTP layer needs.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	CreateTrip(ctx context.Context, cmd service.CreateTripCommand) (*service.CreateTripResult, error)
	Join(ctx context.Context, cmd service.JoinCommand) (*service.JoinResult, error)
	ValidateSession(ctx context.Context, auth *access.AuthContext) (*service.SessionView, error)
	GetTrip(ctx context.Context, auth *access.AuthContext) (*models.Trip, error)
	ListMembers(ctx context.Context, auth *access.AuthContext) ([]*models.Member, error)
	RotatePIN(ctx context.Context, auth *access.AuthContext) (string, error)
	RemoveMember(ctx context.Context, auth *access.AuthContext, targetID id.MemberID) (*models.Member, error)
}

// Pipelines groups the interceptor chains applied per route class.
type Pipelines struct {
	// Public guards unauthenticated routes (create, join).
	Public *access.Pipeline
	// Member requires a verified, live member.
	Member *access.Pipeline
	// Elevated additionally requires the organizer role.
	Elevated *access.Pipeline
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router, p Pipelines) {
	r.Method(http.MethodPost, "/api/trips", p.Public.ThenFunc(h.HandleCreateTrip))
	r.Method(http.MethodPost, "/api/trips/join", p.Public.ThenFunc(h.HandleJoinTrip))
	r.Method(http.MethodGet, "/api/session", p.Member.ThenFunc(h.HandleValidateSession))
	r.Method(http.MethodGet, "/api/trips/current", p.Member.ThenFunc(h.HandleGetTrip))
	r.Method(http.MethodGet, "/api/trips/current/members", p.Member.ThenFunc(h.HandleListMembers))
	r.Method(http.MethodPost, "/api/trips/current/pin/rotate", p.Elevated.ThenFunc(h.HandleRotatePIN))
	r.Method(http.MethodDelete, "/api/trips/current/members/{memberID}", p.Elevated.ThenFunc(h.HandleRemoveMember))
}

// HandleCreateTrip bootstraps a trip and signs the creator in.
func (h *Handler) HandleCreateTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateTripRequest](w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.CreateTrip(ctx, req.toCommand())
	if err != nil {
		h.fail(ctx, w, "create trip failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, &CreateTripResponse{
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		Trip: CreatedTripResponse{
			TripSummaryResponse: toTripSummary(res.Trip),
			PIN:                 res.PIN,
		},
		Member: toMemberResponse(res.Member),
	})
}

// HandleJoinTrip exchanges a PIN and display name for a membership and token.
func (h *Handler) HandleJoinTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[JoinTripRequest](w, r, h.logger)
	if !ok {
		return
	}
	cmd, err := req.toCommand(r.UserAgent())
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "tripId must be a valid id"))
		return
	}

	res, err := h.service.Join(ctx, cmd)
	if err != nil {
		h.fail(ctx, w, "join trip failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &JoinTripResponse{
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		Member:    toMemberResponse(res.Member),
		Trip:      toTripSummary(res.Trip),
	})
}

func (h *Handler) HandleValidateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := h.authContext(w, r)
	if !ok {
		return
	}

	view, err := h.service.ValidateSession(ctx, auth)
	if err != nil {
		h.fail(ctx, w, "validate session failed", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &SessionResponse{
		Valid:  true,
		Member: toMemberResponse(view.Member),
		Trip:   toTripSummary(view.Trip),
	})
}

func (h *Handler) HandleGetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := h.authContext(w, r)
	if !ok {
		return
	}

	trip, err := h.service.GetTrip(ctx, auth)
	if err != nil {
		h.fail(ctx, w, "get trip failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTripSummary(trip))
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := h.authContext(w, r)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(ctx, auth)
	if err != nil {
		h.fail(ctx, w, "list members failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMembersResponse(members))
}

// HandleRotatePIN replaces the trip PIN. The new PIN is disclosed once.
func (h *Handler) HandleRotatePIN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := h.authContext(w, r)
	if !ok {
		return
	}

	pin, err := h.service.RotatePIN(ctx, auth)
	if err != nil {
		h.fail(ctx, w, "rotate pin failed", err)
		return
	}

	h.logger.InfoContext(ctx, "trip pin rotated",
		"trip_id", auth.TripID.String(),
		"actor_id", auth.MemberID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, &RotatePINResponse{PIN: pin})
}

func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := h.authContext(w, r)
	if !ok {
		return
	}
	targetID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid member id"))
		return
	}

	removed, err := h.service.RemoveMember(ctx, auth, targetID)
	if err != nil {
		h.fail(ctx, w, "remove member failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &RemoveMemberResponse{Removed: true, Member: toMemberResponse(removed)})
}

// authContext fetches the live authorization context. Its absence means the
// route was registered without the live-state step.
func (h *Handler) authContext(w http.ResponseWriter, r *http.Request) (*access.AuthContext, bool) {
	auth, ok := access.FromContext(r.Context())
	if !ok {
		h.fail(r.Context(), w, "missing authorization context",
			dErrors.New(dErrors.CodeInternal, "authorization context missing"))
		return nil, false
	}
	return auth, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) || domainErr.Code == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
