package handler

import (
	"time"

	"tripkey/internal/directory/models"
	"tripkey/pkg/validation"
)

// HTTP Response DTOs.

type TripSummaryResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	Timezone      string `json:"timezone"`
	MemberCount   int    `json:"memberCount"`
	ActivityCount int    `json:"activityCount"`
	CreatorID     string `json:"creatorId"`
}

// CreatedTripResponse is the only place a trip's initial PIN is shown.
type CreatedTripResponse struct {
	TripSummaryResponse
	PIN string `json:"pin"`
}

type MemberResponse struct {
	ID          string    `json:"id"`
	TripID      string    `json:"tripId"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	State       string    `json:"state"`
	IsCreator   bool      `json:"isCreator"`
	IsChild     bool      `json:"isChild"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type CreateTripResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Trip      CreatedTripResponse `json:"trip"`
	Member    MemberResponse      `json:"member"`
}

type JoinTripResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Member    MemberResponse      `json:"member"`
	Trip      TripSummaryResponse `json:"trip"`
}

type SessionResponse struct {
	Valid  bool                `json:"valid"`
	Member MemberResponse      `json:"member"`
	Trip   TripSummaryResponse `json:"trip"`
}

type MembersResponse struct {
	Members []MemberResponse `json:"members"`
}

type RotatePINResponse struct {
	PIN string `json:"pin"`
}

type RemoveMemberResponse struct {
	Removed bool           `json:"removed"`
	Member  MemberResponse `json:"member"`
}

func toTripSummary(t *models.Trip) TripSummaryResponse {
	return TripSummaryResponse{
		ID:            t.ID.String(),
		Name:          t.Name,
		StartDate:     t.StartDate.Format(validation.DateLayout),
		EndDate:       t.EndDate.Format(validation.DateLayout),
		Timezone:      t.Timezone,
		MemberCount:   t.MemberCount,
		ActivityCount: t.ActivityCount,
		CreatorID:     t.CreatorID.String(),
	}
}

func toMemberResponse(m *models.Member) MemberResponse {
	return MemberResponse{
		ID:          m.ID.String(),
		TripID:      m.TripID.String(),
		DisplayName: m.DisplayName,
		Role:        m.Role.String(),
		State:       string(m.State),
		IsCreator:   m.IsCreator,
		IsChild:     m.IsChild,
		JoinedAt:    m.JoinedAt,
	}
}

func toMembersResponse(members []*models.Member) *MembersResponse {
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	return &MembersResponse{Members: out}
}
