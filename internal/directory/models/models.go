package models

import (
	"time"

	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
)

// MaxNameLength bounds trip names and member display names.
const MaxNameLength = 80

// Trip is a tenant: an isolated planning workspace with its own members and PIN.
type Trip struct {
	ID        id.TripID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Timezone  string
	// RoleMap holds the authoritative role of every active member.
	RoleMap       map[id.MemberID]Role
	MemberCount   int
	ActivityCount int
	CreatorID     id.MemberID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTrip builds a trip together with its creator, the single elevated member
// established at bootstrap.
func NewTrip(
	tripID id.TripID,
	name string,
	startDate, endDate time.Time,
	timezone string,
	creatorName string,
	now time.Time,
) (*Trip, *Member, error) {
	if name == "" {
		return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "trip name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "trip name is too long")
	}
	if endDate.Before(startDate) {
		return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "endDate must not be before startDate")
	}
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "timezone is not a valid IANA zone")
	}

	creator, err := NewMember(id.NewMemberID(), tripID, creatorName, RoleElevated, false, now)
	if err != nil {
		return nil, nil, err
	}
	creator.IsCreator = true

	trip := &Trip{
		ID:          tripID,
		Name:        name,
		StartDate:   startDate,
		EndDate:     endDate,
		Timezone:    timezone,
		RoleMap:     map[id.MemberID]Role{creator.ID: creator.Role},
		MemberCount: 1,
		CreatorID:   creator.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return trip, creator, nil
}

// Admit records a newly created active member in the role map.
func (t *Trip) Admit(m *Member, now time.Time) error {
	if m.TripID != t.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "member belongs to another trip")
	}
	if !m.IsActive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "only active members can be admitted")
	}
	if _, exists := t.RoleMap[m.ID]; exists {
		return dErrors.New(dErrors.CodeInvariantViolation, "member is already admitted")
	}
	if t.RoleMap == nil {
		t.RoleMap = make(map[id.MemberID]Role)
	}
	t.RoleMap[m.ID] = m.Role
	t.MemberCount++
	t.UpdatedAt = now
	return nil
}

// Evict drops a member from the role map and the member count.
func (t *Trip) Evict(memberID id.MemberID, now time.Time) error {
	if memberID == t.CreatorID {
		return dErrors.New(dErrors.CodeInvariantViolation, "the creator cannot be removed")
	}
	if _, ok := t.RoleMap[memberID]; !ok {
		return dErrors.New(dErrors.CodeInvariantViolation, "member is not in the role map")
	}
	delete(t.RoleMap, memberID)
	if t.MemberCount > 0 {
		t.MemberCount--
	}
	t.UpdatedAt = now
	return nil
}

// RoleOf returns the live role of a member and whether the member has one.
func (t *Trip) RoleOf(memberID id.MemberID) (Role, bool) {
	role, ok := t.RoleMap[memberID]
	return role, ok
}

// Clone returns a deep copy so callers cannot mutate stored role maps.
func (t *Trip) Clone() *Trip {
	if t == nil {
		return nil
	}
	c := *t
	c.RoleMap = make(map[id.MemberID]Role, len(t.RoleMap))
	for k, v := range t.RoleMap {
		c.RoleMap[k] = v
	}
	return &c
}

// Member is one person's membership in one trip. Rejoining after removal
// creates a new Member with a new ID.
type Member struct {
	ID          id.MemberID
	TripID      id.TripID
	DisplayName string
	Role        Role
	State       MemberState
	IsCreator   bool
	IsChild     bool
	JoinedAt    time.Time
	RemovedAt   *time.Time
}

func NewMember(memberID id.MemberID, tripID id.TripID, displayName string, role Role, isChild bool, now time.Time) (*Member, error) {
	if displayName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name cannot be empty")
	}
	if len(displayName) > MaxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name is too long")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown role")
	}
	return &Member{
		ID:          memberID,
		TripID:      tripID,
		DisplayName: displayName,
		Role:        role,
		State:       MemberStateActive,
		IsChild:     isChild,
		JoinedAt:    now,
	}, nil
}

func (m *Member) IsActive() bool {
	return m.State == MemberStateActive
}

// Remove transitions the member to Removed. Removal is terminal.
func (m *Member) Remove(now time.Time) error {
	switch m.State {
	case MemberStateActive:
		m.State = MemberStateRemoved
		m.RemovedAt = &now
		return nil
	case MemberStateRemoved:
		return dErrors.New(dErrors.CodeInvariantViolation, "member is already removed")
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "member has unknown state")
	}
}

func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	c := *m
	if m.RemovedAt != nil {
		t := *m.RemovedAt
		c.RemovedAt = &t
	}
	return &c
}
