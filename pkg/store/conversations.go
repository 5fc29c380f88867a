package store

import (
	"sync"

	"github.com/google/uuid"

	"docqa/pkg/domain"
)

type session struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// Conversations keeps chat sessions in memory. Sessions never expire.
type Conversations struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewConversations initializes an empty conversation store.
func NewConversations() *Conversations {
	return &Conversations{sessions: make(map[string]*session)}
}

// GetOrCreate resolves sessionID to a live session. A blank or unknown id
// starts a new session under a freshly minted id.
func (c *Conversations) GetOrCreate(sessionID string) (string, []domain.Turn) {
	if sessionID != "" {
		if s := c.lookup(sessionID); s != nil {
			return sessionID, s.snapshot()
		}
	}
	id := uuid.NewString()
	c.mu.Lock()
	c.sessions[id] = &session{}
	c.mu.Unlock()
	return id, []domain.Turn{}
}

// Append adds a turn to the end of a session, creating it if needed.
func (c *Conversations) Append(sessionID string, turn domain.Turn) {
	s := c.lookup(sessionID)
	if s == nil {
		c.mu.Lock()
		s = c.sessions[sessionID]
		if s == nil {
			s = &session{}
			c.sessions[sessionID] = s
		}
		c.mu.Unlock()
	}
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()
}

// History returns a copy of a session's turns; unknown ids yield an empty slice.
func (c *Conversations) History(sessionID string) []domain.Turn {
	s := c.lookup(sessionID)
	if s == nil {
		return []domain.Turn{}
	}
	return s.snapshot()
}

func (c *Conversations) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Conversations) lookup(sessionID string) *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[sessionID]
}

func (s *session) snapshot() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
