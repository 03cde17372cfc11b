// internal/api/deliveries.go
package api

import (
	"strings"
	"sync"
	"time"
)

// deliveryStore remembers recent X-GitHub-Delivery IDs so redeliveries
// inside the window are acknowledged without being applied twice.
type deliveryStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
	items map[string]time.Time
}

func newDeliveryStore(ttl time.Duration) *deliveryStore {
	return &deliveryStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]time.Time),
	}
}

// MarkIfNew returns true when the delivery ID has not been seen in the
// window. An empty ID always counts as new.
func (s *deliveryStore) MarkIfNew(deliveryID string) bool {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return true
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	if seenAt, ok := s.items[deliveryID]; ok && now.Sub(seenAt) <= s.ttl {
		return false
	}
	s.items[deliveryID] = now
	return true
}

// Forget drops an ID so a redelivery is applied again.
func (s *deliveryStore) Forget(deliveryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, strings.TrimSpace(deliveryID))
}

func (s *deliveryStore) cleanupLocked(now time.Time) {
	for id, seenAt := range s.items {
		if now.Sub(seenAt) > s.ttl {
			delete(s.items, id)
		}
	}
}
