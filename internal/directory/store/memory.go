package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tripkey/internal/directory/models"
	id "tripkey/pkg/domain"
	"tripkey/pkg/platform/sentinel"
	txcontext "tripkey/pkg/platform/tx"
)

// InMemory keeps trips and members in process memory. Records are cloned on the
// way in and out so callers never share mutable state with the store. Writes
// made inside a StoreTx register an undo step so a failed transaction leaves
// no trace.
type InMemory struct {
	mu      sync.RWMutex
	trips   map[id.TripID]*models.Trip
	members map[id.TripID]map[id.MemberID]*models.Member
}

func NewInMemory() *InMemory {
	return &InMemory{
		trips:   make(map[id.TripID]*models.Trip),
		members: make(map[id.TripID]map[id.MemberID]*models.Member),
	}
}

func (s *InMemory) CreateTrip(ctx context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trips[trip.ID]; exists {
		return fmt.Errorf("trip %s: %w", trip.ID, sentinel.ErrConflict)
	}
	s.trips[trip.ID] = trip.Clone()
	s.members[trip.ID] = make(map[id.MemberID]*models.Member)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.trips, trip.ID)
		delete(s.members, trip.ID)
	})
	return nil
}

func (s *InMemory) FindTrip(_ context.Context, tripID id.TripID) (*models.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trip, ok := s.trips[tripID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return trip.Clone(), nil
}

// UpdateTrip replaces the mutable fields: role map, counters, timestamps.
func (s *InMemory) UpdateTrip(ctx context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.trips[trip.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.trips[trip.ID] = trip.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.trips[prev.ID]; ok {
			s.trips[prev.ID] = prev
		}
	})
	return nil
}

// CreateMember inserts a member, rejecting a display name already used by an
// active member of the same trip.
func (s *InMemory) CreateMember(ctx context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.members[member.TripID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range byID {
		if existing.IsActive() && existing.DisplayName == member.DisplayName {
			return fmt.Errorf("display name %q: %w", member.DisplayName, sentinel.ErrAlreadyUsed)
		}
	}
	byID[member.ID] = member.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.members[member.TripID], member.ID)
	})
	return nil
}

func (s *InMemory) FindMember(_ context.Context, tripID id.TripID, memberID id.MemberID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[tripID][memberID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *InMemory) UpdateMember(ctx context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.members[member.TripID]
	if !ok {
		return sentinel.ErrNotFound
	}
	prev, ok := byID[member.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	byID[member.ID] = member.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if byID, ok := s.members[prev.TripID]; ok {
			byID[prev.ID] = prev
		}
	})
	return nil
}

// ListActiveMembers returns active members ordered by join time.
func (s *InMemory) ListActiveMembers(_ context.Context, tripID id.TripID) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID, ok := s.members[tripID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]*models.Member, 0, len(byID))
	for _, m := range byID {
		if m.IsActive() {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

// Ping satisfies the readiness check.
func (s *InMemory) Ping(context.Context) error { return nil }
