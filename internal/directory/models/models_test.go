package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "tripkey/pkg/domain"
	dErrors "tripkey/pkg/domain-errors"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTrip(t *testing.T) (*Trip, *Member) {
	t.Helper()
	trip, creator, err := NewTrip(id.NewTripID(), "Lisbon",
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 9, 0, 0, 0, 0, time.UTC),
		"Europe/Lisbon", "Maya", now)
	require.NoError(t, err)
	return trip, creator
}

func TestNewTrip(t *testing.T) {
	t.Run("bootstraps an elevated creator", func(t *testing.T) {
		trip, creator := newTestTrip(t)
		assert.Equal(t, creator.ID, trip.CreatorID)
		assert.True(t, creator.IsCreator)
		assert.Equal(t, RoleElevated, creator.Role)
		assert.Equal(t, MemberStateActive, creator.State)
		assert.Equal(t, 1, trip.MemberCount)
		role, ok := trip.RoleOf(creator.ID)
		require.True(t, ok)
		assert.Equal(t, RoleElevated, role)
	})

	t.Run("end before start", func(t *testing.T) {
		_, _, err := NewTrip(id.NewTripID(), "Lisbon",
			time.Date(2026, 7, 9, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			"Europe/Lisbon", "Maya", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("unknown timezone", func(t *testing.T) {
		_, _, err := NewTrip(id.NewTripID(), "Lisbon", now, now, "Atlantis/Nowhere", "Maya", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestAdmitAndEvict(t *testing.T) {
	trip, creator := newTestTrip(t)
	alice, err := NewMember(id.NewMemberID(), trip.ID, "Alice", RoleStandard, false, now)
	require.NoError(t, err)

	require.NoError(t, trip.Admit(alice, now))
	assert.Equal(t, 2, trip.MemberCount)
	assert.Error(t, trip.Admit(alice, now), "double admit")

	require.NoError(t, trip.Evict(alice.ID, now))
	assert.Equal(t, 1, trip.MemberCount)
	_, ok := trip.RoleOf(alice.ID)
	assert.False(t, ok)

	assert.Error(t, trip.Evict(creator.ID, now), "creator is never evicted")
}

func TestMemberRemoveIsTerminal(t *testing.T) {
	m, err := NewMember(id.NewMemberID(), id.NewTripID(), "Alice", RoleStandard, true, now)
	require.NoError(t, err)

	require.NoError(t, m.Remove(now))
	assert.Equal(t, MemberStateRemoved, m.State)
	require.NotNil(t, m.RemovedAt)
	assert.Error(t, m.Remove(now))
}

func TestCloneIsolatesRoleMap(t *testing.T) {
	trip, creator := newTestTrip(t)
	c := trip.Clone()
	delete(c.RoleMap, creator.ID)
	_, ok := trip.RoleOf(creator.ID)
	assert.True(t, ok)
}
