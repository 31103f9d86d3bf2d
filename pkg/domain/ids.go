// Package domain provides type-safe identifiers so trip and member IDs cannot be mixed up.
package domain

import (
	"github.com/google/uuid"

	dErrors "tripkey/pkg/domain-errors"
)

// Distinct ID types - the compiler refuses a MemberID where a TripID is expected.
type (
	TripID   uuid.UUID
	MemberID uuid.UUID
)

// NewTripID and NewMemberID mint random (v4) identifiers.
func NewTripID() TripID     { return TripID(uuid.New()) }
func NewMemberID() MemberID { return MemberID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, token claims).

func ParseTripID(s string) (TripID, error) {
	id, err := parseUUID(s, "trip ID")
	return TripID(id), err
}

func ParseMemberID(s string) (MemberID, error) {
	id, err := parseUUID(s, "member ID")
	return MemberID(id), err
}

func (id TripID) String() string   { return uuid.UUID(id).String() }
func (id MemberID) String() string { return uuid.UUID(id).String() }

func (id TripID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialize as plain UUID strings in JSON bodies and map keys.
func (id TripID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id MemberID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TripID) UnmarshalText(b []byte) error {
	parsed, err := ParseTripID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *MemberID) UnmarshalText(b []byte) error {
	parsed, err := ParseMemberID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// parseUUID is the shared validation logic. The nil UUID is rejected: no trip or
// member is ever created with it, so accepting it only defers a guaranteed miss.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
