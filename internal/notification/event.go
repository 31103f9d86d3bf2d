// Package notification carries best-effort membership events to other members.
// Delivery may silently fail; nothing in the join or removal path waits on it.
package notification

import (
	"time"

	"github.com/google/uuid"

	id "tripkey/pkg/domain"
)

type Type string

const (
	TypeMemberJoined  Type = "member.joined"
	TypeMemberRemoved Type = "member.removed"
	TypePINRotated    Type = "pin.rotated"
)

type Event struct {
	ID          string      `json:"id"`
	Type        Type        `json:"type"`
	TripID      id.TripID   `json:"tripId"`
	MemberID    id.MemberID `json:"memberId"`
	DisplayName string      `json:"displayName"`
	// Device is a coarse label such as "Chrome on macOS"; empty when unknown.
	Device     string    `json:"device,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewEvent(t Type, tripID id.TripID, memberID id.MemberID, displayName string, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		TripID:      tripID,
		MemberID:    memberID,
		DisplayName: displayName,
		OccurredAt:  at,
	}
}
