package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// ChatSessionService keeps the in-memory conversation state for every
// active browser or terminal session. Sessions idle for longer than the
// TTL are dropped; nothing is persisted.
type ChatSessionService struct {
	ttl             time.Duration
	defaultSettings chattypes.SessionSettings
	now             func() time.Time

	mu       sync.RWMutex
	sessions map[string]*chattypes.ChatSession
}

// NewChatSessionService creates a session store. A zero ttl disables expiry.
func NewChatSessionService(ttl time.Duration, defaults chattypes.SessionSettings) *ChatSessionService {
	return &ChatSessionService{
		ttl:             ttl,
		defaultSettings: defaults,
		now:             time.Now,
		sessions:        make(map[string]*chattypes.ChatSession),
	}
}

// Name returns the service name "chat_session" for registration.
func (c *ChatSessionService) Name() string {
	return "chat_session"
}

// Initialize clears any existing sessions.
func (c *ChatSessionService) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = make(map[string]*chattypes.ChatSession)
	logger.ServiceOperation("chat_session", "initialize", "ttl", c.ttl.String())
	return nil
}

// SetDefaultSettings changes the settings given to sessions created from now on.
func (c *ChatSessionService) SetDefaultSettings(defaults chattypes.SessionSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultSettings = defaults
}

// SetClock replaces the time source, for tests.
func (c *ChatSessionService) SetClock(now func() time.Time) {
	c.now = now
}

// Now returns the current time from the service clock.
func (c *ChatSessionService) Now() time.Time {
	return c.now()
}

// CreateSession starts an empty session with the default settings.
func (c *ChatSessionService) CreateSession() (*chattypes.ChatSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	c.mu.Lock()
	session := chattypes.NewChatSession(id.String(), c.defaultSettings, c.now())
	c.sessions[session.ID()] = session
	c.mu.Unlock()

	logger.Debug("Session created", "session", session.ID())
	return session, nil
}

// GetSession returns a live session by id and records activity on it.
func (c *ChatSessionService) GetSession(id string) (*chattypes.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if c.expired(session) {
		delete(c.sessions, id)
		return nil, fmt.Errorf("session %s expired", id)
	}

	session.Touch(c.now())
	return session, nil
}

// GetOrCreateSession returns the session for id, or a new one when id is
// empty, unknown or expired. created reports whether a new session was made.
func (c *ChatSessionService) GetOrCreateSession(id string) (session *chattypes.ChatSession, created bool, err error) {
	if id != "" {
		if session, err := c.GetSession(id); err == nil {
			return session, false, nil
		}
	}
	session, err = c.CreateSession()
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// DeleteSession removes a session. Unknown ids are ignored.
func (c *ChatSessionService) DeleteSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// Count returns the number of stored sessions.
func (c *ChatSessionService) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// SweepExpired drops idle sessions and returns how many were removed.
// Sessions with a turn in progress are kept.
func (c *ChatSessionService) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, session := range c.sessions {
		if c.expired(session) {
			delete(c.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("Expired sessions removed", "count", removed, "remaining", len(c.sessions))
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (c *ChatSessionService) Run(ctx context.Context, interval time.Duration) error {
	if c.ttl <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.SweepExpired()
		}
	}
}

func (c *ChatSessionService) expired(session *chattypes.ChatSession) bool {
	if c.ttl <= 0 || session.TurnActive() {
		return false
	}
	return c.now().Sub(session.LastActivity()) > c.ttl
}

// NewMessageID returns a time-ordered message identifier.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
