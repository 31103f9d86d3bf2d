package testutil

import (
	"time"

	"github.com/google/uuid"

	"tripkey/internal/directory/models"
	id "tripkey/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	TripID1   id.TripID
	TripID2   id.TripID
	MemberID1 id.MemberID
	MemberID2 id.MemberID
	MemberID3 id.MemberID
}{
	TripID1:   id.TripID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	TripID2:   id.TripID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
	MemberID1: id.MemberID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	MemberID2: id.MemberID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	MemberID3: id.MemberID(uuid.MustParse("33333333-3333-3333-3333-333333333333")),
}

// FixedNow is the clock used by fixtures.
var FixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// TripBuilder provides a fluent interface for building a trip with its creator
// and any extra members already admitted.
type TripBuilder struct {
	trip    *models.Trip
	members []*models.Member
}

// NewTripBuilder creates a trip organised by "Organizer" with sensible defaults.
func NewTripBuilder() *TripBuilder {
	creator := &models.Member{
		ID:          TestIDs.MemberID1,
		TripID:      TestIDs.TripID1,
		DisplayName: "Organizer",
		Role:        models.RoleElevated,
		State:       models.MemberStateActive,
		IsCreator:   true,
		JoinedAt:    FixedNow,
	}
	return &TripBuilder{
		trip: &models.Trip{
			ID:          TestIDs.TripID1,
			Name:        "Lisbon 2026",
			StartDate:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			EndDate:     time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC),
			Timezone:    "Europe/Lisbon",
			RoleMap:     map[id.MemberID]models.Role{creator.ID: creator.Role},
			MemberCount: 1,
			CreatorID:   creator.ID,
			CreatedAt:   FixedNow,
			UpdatedAt:   FixedNow,
		},
		members: []*models.Member{creator},
	}
}

func (b *TripBuilder) WithID(tripID id.TripID) *TripBuilder {
	b.trip.ID = tripID
	for _, m := range b.members {
		m.TripID = tripID
	}
	return b
}

// WithCreatorID re-keys the creator. Call it before adding members.
func (b *TripBuilder) WithCreatorID(memberID id.MemberID) *TripBuilder {
	creator := b.members[0]
	delete(b.trip.RoleMap, creator.ID)
	creator.ID = memberID
	b.trip.CreatorID = memberID
	b.trip.RoleMap[memberID] = creator.Role
	return b
}

func (b *TripBuilder) WithName(name string) *TripBuilder {
	b.trip.Name = name
	return b
}

func (b *TripBuilder) CreatedAt(t time.Time) *TripBuilder {
	b.trip.CreatedAt = t
	b.trip.UpdatedAt = t
	return b
}

// WithMember admits an active standard member.
func (b *TripBuilder) WithMember(memberID id.MemberID, displayName string) *TripBuilder {
	m := &models.Member{
		ID:          memberID,
		TripID:      b.trip.ID,
		DisplayName: displayName,
		Role:        models.RoleStandard,
		State:       models.MemberStateActive,
		JoinedAt:    FixedNow,
	}
	b.trip.RoleMap[m.ID] = m.Role
	b.trip.MemberCount++
	b.members = append(b.members, m)
	return b
}

// WithRemovedMember adds a member that has already been removed.
func (b *TripBuilder) WithRemovedMember(memberID id.MemberID, displayName string) *TripBuilder {
	removedAt := FixedNow
	b.members = append(b.members, &models.Member{
		ID:          memberID,
		TripID:      b.trip.ID,
		DisplayName: displayName,
		Role:        models.RoleStandard,
		State:       models.MemberStateRemoved,
		JoinedAt:    FixedNow,
		RemovedAt:   &removedAt,
	})
	return b
}

// Build returns the trip and its members, creator first.
func (b *TripBuilder) Build() (*models.Trip, []*models.Member) {
	return b.trip, b.members
}
