// Package inbox is the bounded, ordered notification list the dashboard
// reads alerts from.
package inbox

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prisminsights/prism/pkg/types"
)

// DefaultMaxAlerts is the retention cap used when New is given a cap < 1.
const DefaultMaxAlerts = 50

// Listener is called with a copy of every alert added to the store.
type Listener func(types.Alert)

// Store is a thread-safe in-memory alert list, newest first. When it holds
// more than max alerts the oldest are evicted.
type Store struct {
	mu        sync.RWMutex
	alerts    []*types.Alert // newest first
	max       int
	listeners []Listener
	now       func() time.Time // injectable for deterministic tests
	newID     func() string
}

// New creates a Store that retains at most max alerts.
func New(max int) *Store {
	if max < 1 {
		max = DefaultMaxAlerts
	}
	return &Store{
		max:   max,
		now:   time.Now,
		newID: func() string { return "alert-" + uuid.NewString() },
	}
}

// Subscribe registers fn to be called after every AddAlert. Listeners run
// synchronously on the caller's goroutine, after the store lock is released.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// AddAlert stamps d with an ID and timestamp, marks it unread and stores it
// at the head of the list. It returns the stored alert.
func (s *Store) AddAlert(d types.Draft) types.Alert {
	s.mu.Lock()
	a := &types.Alert{
		Draft:     d,
		ID:        s.newID(),
		Timestamp: s.now().UTC(),
	}
	s.alerts = append([]*types.Alert{a}, s.alerts...)
	if len(s.alerts) > s.max {
		for i := s.max; i < len(s.alerts); i++ {
			s.alerts[i] = nil
		}
		s.alerts = s.alerts[:s.max]
	}
	out := *a
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(out)
	}
	return out
}

// MarkAsRead flags the alert with id as read. It returns false if no such
// alert is retained.
func (s *Store) MarkAsRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == id {
			a.Read = true
			return true
		}
	}
	return false
}

// MarkAllAsRead flags every retained alert as read and returns how many
// were previously unread.
func (s *Store) MarkAllAsRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if !a.Read {
			a.Read = true
			n++
		}
	}
	return n
}

// Clear removes every alert.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = nil
}

// UnreadCount returns the number of retained unread alerts.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if !a.Read {
			n++
		}
	}
	return n
}

// Count returns the number of retained alerts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Max returns the retention cap.
func (s *Store) Max() int { return s.max }

// Get returns a copy of the alert with id.
func (s *Store) Get(id string) (types.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.ID == id {
			return *a, true
		}
	}
	return types.Alert{}, false
}

// List returns copies of all retained alerts, newest first.
func (s *Store) List() []types.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Alert, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = *a
	}
	return out
}
