package notification

import (
	"context"
	"slices"
	"sync"

	id "tripkey/pkg/domain"
)

// DefaultFeedSize is how many events MemoryFeed keeps per trip.
const DefaultFeedSize = 100

// MemoryFeed keeps the most recent events per trip in process memory.
type MemoryFeed struct {
	mu     sync.RWMutex
	size   int
	events map[id.TripID][]Event
}

func NewMemoryFeed(size int) *MemoryFeed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &MemoryFeed{size: size, events: make(map[id.TripID][]Event)}
}

func (f *MemoryFeed) Publish(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	feed := append(f.events[ev.TripID], ev)
	if len(feed) > f.size {
		feed = slices.Clone(feed[len(feed)-f.size:])
	}
	f.events[ev.TripID] = feed
	return nil
}

// Recent returns a trip's events, newest last.
func (f *MemoryFeed) Recent(tripID id.TripID) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.events[tripID])
}
