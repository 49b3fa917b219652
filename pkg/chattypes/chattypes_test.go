package chattypes

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnError_IsMatchesKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{
			name:     "same kind with cause",
			err:      NewTurnError(KindSearchFailure, "search", errors.New("dial tcp")),
			target:   ErrSearchFailure,
			expected: true,
		},
		{
			name:     "wrapped twice",
			err:      fmt.Errorf("turn: %w", NewTurnError(KindCompletionFailure, "stream", errors.New("eof"))),
			target:   ErrCompletionFailure,
			expected: true,
		},
		{
			name:     "different kind",
			err:      NewTurnError(KindSearchFailure, "search", nil),
			target:   ErrCompletionFailure,
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			target:   ErrInputRejected,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errors.Is(tt.err, tt.target))
		})
	}
}

func TestTurnError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTurnError(KindCompletionFailure, "open stream", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "completion_failure: open stream: connection refused", err.Error())
	assert.Equal(t, "input_rejected", ErrInputRejected.Error())
	assert.Equal(t, KindCompletionFailure, KindOf(fmt.Errorf("x: %w", err)))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, KindSearchFailure.Retryable())
	assert.True(t, KindCompletionFailure.Retryable())
	assert.False(t, KindInputRejected.Retryable())
	assert.False(t, KindUnsupportedModel.Retryable())
}

func TestChatSession_HistoryIsCopied(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	session := NewChatSession("s1", SessionSettings{SelectedModel: "DeepSeek-R1"}, now)

	session.AppendMessage(Message{ID: "m1", Role: RoleUser, Content: "hi", Timestamp: now.Add(time.Second)})
	history := session.Messages()
	require.Len(t, history, 1)

	history[0].Content = "mutated"
	assert.Equal(t, "hi", session.Messages()[0].Content)
	assert.Equal(t, now.Add(time.Second), session.LastActivity())
}

func TestChatSession_TurnGuard(t *testing.T) {
	session := NewChatSession("s1", SessionSettings{}, time.Now())

	require.True(t, session.TryBeginTurn())
	assert.True(t, session.TurnActive())
	assert.False(t, session.TryBeginTurn())

	session.EndTurn()
	assert.False(t, session.TurnActive())
	assert.True(t, session.TryBeginTurn())
}

func TestChatSession_Snapshot(t *testing.T) {
	now := time.Now()
	session := NewChatSession("s1", SessionSettings{SelectedModel: "a"}, now)
	session.AppendMessage(Message{Role: RoleUser, Content: "q"})
	session.AppendMessage(Message{Role: RoleAssistant, Content: "a"})
	session.SetSettings(SessionSettings{SelectedModel: "b", WebSearchEnabled: true}, now)

	snap := session.Snapshot()
	assert.Equal(t, "s1", snap.ID)
	assert.Equal(t, "b", snap.Settings.SelectedModel)
	assert.True(t, snap.Settings.WebSearchEnabled)
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, 2, session.Len())
}
