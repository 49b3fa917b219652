package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akashchat/pkg/chattypes"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestSessionService(ttl time.Duration) (*ChatSessionService, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := NewChatSessionService(ttl, chattypes.SessionSettings{SelectedModel: "DeepSeek-R1"})
	service.SetClock(clock.Now)
	return service, clock
}

func TestChatSessionService_CreateAndGet(t *testing.T) {
	service, _ := newTestSessionService(time.Hour)
	require.NoError(t, service.Initialize())
	assert.Equal(t, "chat_session", service.Name())

	session, err := service.CreateSession()
	require.NoError(t, err)

	parsed, err := uuid.Parse(session.ID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Equal(t, "DeepSeek-R1", session.Settings().SelectedModel)
	assert.False(t, session.Settings().WebSearchEnabled)

	got, err := service.GetSession(session.ID())
	require.NoError(t, err)
	assert.Same(t, session, got)

	_, err = service.GetSession("missing")
	assert.Error(t, err)
}

func TestChatSessionService_GetOrCreate(t *testing.T) {
	service, _ := newTestSessionService(time.Hour)

	first, created, err := service.GetOrCreateSession("")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := service.GetOrCreateSession(first.ID())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)

	other, created, err := service.GetOrCreateSession("stale-cookie")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID(), other.ID())
	assert.Equal(t, 2, service.Count())
}

func TestChatSessionService_Expiry(t *testing.T) {
	service, clock := newTestSessionService(30 * time.Minute)

	idle, err := service.CreateSession()
	require.NoError(t, err)
	busy, err := service.CreateSession()
	require.NoError(t, err)
	require.True(t, busy.TryBeginTurn())

	clock.Advance(31 * time.Minute)

	_, err = service.GetSession(idle.ID())
	assert.ErrorContains(t, err, "expired")

	assert.Equal(t, 0, service.SweepExpired(), "sessions with an active turn are kept")
	busy.EndTurn()
	assert.Equal(t, 1, service.SweepExpired())
	assert.Equal(t, 0, service.Count())
}

func TestChatSessionService_ZeroTTLNeverExpires(t *testing.T) {
	service, clock := newTestSessionService(0)
	session, err := service.CreateSession()
	require.NoError(t, err)

	clock.Advance(1000 * time.Hour)
	_, err = service.GetSession(session.ID())
	assert.NoError(t, err)
}

func TestChatSessionService_RunStopsOnCancel(t *testing.T) {
	service, _ := newTestSessionService(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- service.Run(ctx, 10*time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMessageID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
