package service

import (
	"time"

	"tripkey/internal/directory/models"
	id "tripkey/pkg/domain"
)

type CreateTripCommand struct {
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	Timezone    string
	DisplayName string
}

type JoinCommand struct {
	PIN string
	// TripID narrows resolution to one trip; nil scans every trip.
	TripID      *id.TripID
	DisplayName string
	IsChild     bool
	UserAgent   string
}

// Session is a freshly issued bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// CreateTripResult carries the only copy of the initial PIN.
type CreateTripResult struct {
	Trip    *models.Trip
	Member  *models.Member
	Session Session
	PIN     string
}

type JoinResult struct {
	Trip    *models.Trip
	Member  *models.Member
	Session Session
}

// SessionView is the live state behind a valid session.
type SessionView struct {
	Trip   *models.Trip
	Member *models.Member
}
