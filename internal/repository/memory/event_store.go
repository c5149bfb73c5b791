package memory

import (
	"context"
	"sync"
	"time"
)

// EventStore remembers processed webhook event ids for a fixed window.
type EventStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewEventStore(ttl time.Duration) *EventStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EventStore{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (s *EventStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.seen[eventID]
	if !ok {
		return false, nil
	}
	if s.now().After(expires) {
		delete(s.seen, eventID)
		return false, nil
	}
	return true, nil
}

func (s *EventStore) Remember(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[eventID] = s.now().Add(s.ttl)
	return nil
}
