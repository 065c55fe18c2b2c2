package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scorewise/scorewise/internal/api"
)

// Session carries the dashboard's page-to-page state: the form sets the
// applicant record and prediction, the scoring/explanation/comparison pages
// read them. Sessions live server-side, keyed by a cookie, and expire on their
// own; nothing here outlives the browsing session.
type Session struct {
	ID        string
	Input     map[string]string
	Values    []any
	Result    *api.PredictResponse
	ExpiresAt time.Time
}

func (s *Session) expired() bool { return time.Now().After(s.ExpiresAt) }

// SessionStore is a thread-safe TTL map of sessions with background cleanup.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewSessionStore creates the store and starts its cleanup loop.
func NewSessionStore(ttl time.Duration) *SessionStore {
	store := &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
	go store.cleanup()
	return store
}

func (st *SessionStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		st.mu.Lock()
		for id, s := range st.sessions {
			if s.expired() {
				delete(st.sessions, id)
			}
		}
		st.mu.Unlock()
	}
}

// Get returns a live session by ID.
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok || s.expired() {
		return nil, false
	}
	return s, true
}

// Put stores a session, minting an ID when it has none, and refreshes its
// expiry.
func (st *SessionStore) Put(s *Session) string {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.ExpiresAt = time.Now().Add(st.ttl)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s.ID
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
