package services

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// GeminiClient streams completions for catalog entries with provider "gemini".
// Thought parts are not forwarded; only answer text reaches the fragment stream.
type GeminiClient struct {
	apiKey     string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(apiKey string, httpClient *http.Client) *GeminiClient {
	return &GeminiClient{
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// GetProviderName returns the provider name for this client.
func (c *GeminiClient) GetProviderName() string {
	return ProviderGemini
}

// IsConfigured returns true if the client has a valid API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	if c.apiKey == "" {
		return chattypes.NewTurnError(chattypes.KindConfiguration, "gemini client", errMissingAPIKey(ProviderGemini))
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.httpClient != nil {
		clientConfig.HTTPClient = c.httpClient
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return chattypes.NewTurnError(chattypes.KindConfiguration, "gemini client", err)
	}

	c.client = client
	logger.Debug("Gemini client initialized", "provider", ProviderGemini)
	return nil
}

// StreamChatCompletion streams GenerateContent responses and forwards answer text.
func (c *GeminiClient) StreamChatCompletion(ctx context.Context, model string, messages []chattypes.Message) (<-chan chattypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, err
	}

	contents := convertMessagesToGemini(messages)
	logger.Debug("Sending Gemini streaming request", "model", model, "message_count", len(contents))

	responseChan := make(chan chattypes.StreamChunk, streamBufferSize)

	go func() {
		defer close(responseChan)

		finished := false
		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, nil) {
			if err != nil {
				finishStream(ctx, responseChan, "gemini stream", err)
				return
			}
			if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
				finished = true
			}
			for _, text := range geminiAnswerText(resp) {
				if !sendChunk(ctx, responseChan, chattypes.StreamChunk{Content: text}) {
					return
				}
			}
		}

		err := ctx.Err()
		if err == nil && !finished {
			err = errors.New("stream ended without finish reason")
		}
		finishStream(ctx, responseChan, "gemini stream", err)
	}()

	return responseChan, nil
}

// geminiAnswerText returns the non-thought text parts of the first candidate.
func geminiAnswerText(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		texts = append(texts, part.Text)
	}
	return texts
}

// convertMessagesToGemini maps history onto Gemini contents. Gemini calls the assistant "model".
func convertMessagesToGemini(messages []chattypes.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case chattypes.RoleUser:
			role = string(genai.RoleUser)
		case chattypes.RoleAssistant:
			role = string(genai.RoleModel)
		default:
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents
}
