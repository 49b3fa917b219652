package chattypes

import "context"

// StreamChunk represents a single chunk of streaming response.
type StreamChunk struct {
	Content string // The text content of this chunk
	Done    bool   // Whether this is the final chunk
	Error   error  // Any error that occurred during streaming
}

// CompletionClient is the completion service adapter contract.
// Implementations translate a conversation into a lazily produced, finite
// sequence of text fragments.
type CompletionClient interface {
	// StreamChatCompletion opens a streaming completion for the given model.
	// Fragments arrive on the returned channel in emission order. The final
	// chunk has Done set; its Error is nil on a clean end-of-stream. The
	// channel is closed after the final chunk.
	StreamChatCompletion(ctx context.Context, model string, messages []Message) (<-chan StreamChunk, error)

	// GetProviderName returns the provider name (e.g., "akash", "anthropic").
	GetProviderName() string

	// IsConfigured returns true if the client has the credentials it needs.
	IsConfigured() bool
}
