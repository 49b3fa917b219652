package testutils

import (
	"context"
	"sync"

	"akashchat/pkg/chattypes"
)

// CompletionCall records one StreamChatCompletion invocation.
type CompletionCall struct {
	Model    string
	Messages []chattypes.Message
}

// ScriptedCompletionClient replays a fixed fragment sequence.
//
// OpenErr fails the call before any stream is returned. StreamErr ends the
// stream after Fragments with a failed final chunk. CloseEarly closes the
// channel without a final chunk. Block, when set, is waited on before the
// final chunk so tests can hold a turn open.
type ScriptedCompletionClient struct {
	Fragments    []string
	OpenErr      error
	StreamErr    error
	CloseEarly   bool
	Block        chan struct{}
	Unconfigured bool

	mu    sync.Mutex
	calls []CompletionCall
}

// NewScriptedCompletionClient returns a client that streams fragments and ends cleanly.
func NewScriptedCompletionClient(fragments ...string) *ScriptedCompletionClient {
	return &ScriptedCompletionClient{Fragments: fragments}
}

// StreamChatCompletion implements chattypes.CompletionClient.
func (c *ScriptedCompletionClient) StreamChatCompletion(ctx context.Context, model string, messages []chattypes.Message) (<-chan chattypes.StreamChunk, error) {
	copied := make([]chattypes.Message, len(messages))
	copy(copied, messages)

	c.mu.Lock()
	c.calls = append(c.calls, CompletionCall{Model: model, Messages: copied})
	c.mu.Unlock()

	if c.OpenErr != nil {
		return nil, c.OpenErr
	}

	ch := make(chan chattypes.StreamChunk)
	go func() {
		defer close(ch)
		for _, fragment := range c.Fragments {
			select {
			case ch <- chattypes.StreamChunk{Content: fragment}:
			case <-ctx.Done():
				return
			}
		}
		if c.Block != nil {
			select {
			case <-c.Block:
			case <-ctx.Done():
				return
			}
		}
		if c.CloseEarly {
			return
		}
		select {
		case ch <- chattypes.StreamChunk{Done: true, Error: c.StreamErr}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// GetProviderName implements chattypes.CompletionClient.
func (c *ScriptedCompletionClient) GetProviderName() string {
	return "scripted"
}

// IsConfigured implements chattypes.CompletionClient.
func (c *ScriptedCompletionClient) IsConfigured() bool {
	return !c.Unconfigured
}

// Calls returns the recorded invocations.
func (c *ScriptedCompletionClient) Calls() []CompletionCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CompletionCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of invocations.
func (c *ScriptedCompletionClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// LastCall returns the most recent invocation. It panics when there is none.
func (c *ScriptedCompletionClient) LastCall() CompletionCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}
