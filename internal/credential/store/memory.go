package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tripkey/internal/credential/models"
	id "tripkey/pkg/domain"
	"tripkey/pkg/platform/sentinel"
	txcontext "tripkey/pkg/platform/tx"
)

// InMemory holds credentials in process memory.
type InMemory struct {
	mu    sync.RWMutex
	creds map[id.TripID]*models.Credential
}

func NewInMemory() *InMemory {
	return &InMemory{creds: make(map[id.TripID]*models.Credential)}
}

func (s *InMemory) Create(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[cred.TripID]; exists {
		return fmt.Errorf("credential for trip %s: %w", cred.TripID, sentinel.ErrConflict)
	}
	s.creds[cred.TripID] = cred.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.creds, cred.TripID)
	})
	return nil
}

func (s *InMemory) Find(_ context.Context, tripID id.TripID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[tripID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cred.Clone(), nil
}

// Replace overwrites the hash and rotation metadata in one step.
func (s *InMemory) Replace(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.creds[cred.TripID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.creds[cred.TripID] = cred.Clone()
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.creds[prev.TripID] = prev
	})
	return nil
}

// ListOrdered returns every credential ordered by creation time, then trip id.
func (s *InMemory) ListOrdered(_ context.Context) ([]*models.Credential, error) {
	s.mu.RLock()
	out := make([]*models.Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		out = append(out, cred.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TripID.String() < out[j].TripID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
