package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/atelier-shop/backend/internal/models"
)

// ClientState holds each attached user's local session state. It is the
// client-side view of membership: set on create/join/resume, cleared on
// disconnect or when the watcher observes a creator teardown. AlreadyInSession
// checks consult only this state, never the store.
type ClientState struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.Session
}

func NewClientState() *ClientState {
	return &ClientState{sessions: make(map[uuid.UUID]models.Session)}
}

func (s *ClientState) Get(userID uuid.UUID) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

func (s *ClientState) Set(userID uuid.UUID, sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sess
}

func (s *ClientState) Clear(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// ClearSession drops local state for every user attached to the session. Used
// when a creator teardown is observed on the feed.
func (s *ClientState) ClearSession(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, sess := range s.sessions {
		if sess.ID == sessionID {
			delete(s.sessions, uid)
		}
	}
}
