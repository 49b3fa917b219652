package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// maxStreamLine bounds a single SSE line from the completion endpoint.
const maxStreamLine = 1 << 20

// OpenAICompatibleClient streams chat completions over plain HTTP and
// Server-Sent Events from any endpoint implementing the OpenAI Chat
// Completions API. It is the `http` completion transport.
type OpenAICompatibleClient struct {
	providerName string
	apiKey       string
	baseURL      string
	headers      map[string]string
	endpoint     string
	httpClient   *http.Client
}

// OpenAICompatibleConfig holds configuration for the OpenAI-compatible client.
type OpenAICompatibleConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	Headers      map[string]string
	Endpoint     string // Custom endpoint path (defaults to "/chat/completions")
	HTTPClient   *http.Client
}

// ChatCompletionRequest represents the request payload for OpenAI-compatible chat completions.
type ChatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []ChatCompletionMessage `json:"messages"`
	Stream   bool                    `json:"stream,omitempty"`
}

// ChatCompletionMessage represents a message in the chat completion request.
type ChatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionChunk represents one streamed event from the endpoint.
type ChatCompletionChunk struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Error   *ChatCompletionError   `json:"error,omitempty"`
}

// ChatCompletionChoice represents a choice in a streamed chunk.
type ChatCompletionChoice struct {
	Index        int                    `json:"index"`
	Delta        *ChatCompletionMessage `json:"delta,omitempty"`
	FinishReason *string                `json:"finish_reason"`
}

// ChatCompletionError represents an error event.
type ChatCompletionError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// NewOpenAICompatibleClient creates a new OpenAI-compatible client.
// If no baseURL is provided, it defaults to the Akash Chat API.
func NewOpenAICompatibleClient(config OpenAICompatibleConfig) *OpenAICompatibleClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://chatapi.akash.network/api/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	headers := make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		headers[k] = v
	}

	providerName := config.ProviderName
	if providerName == "" {
		providerName = ProviderAkash
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "/chat/completions"
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &OpenAICompatibleClient{
		providerName: providerName,
		apiKey:       config.APIKey,
		baseURL:      baseURL,
		headers:      headers,
		endpoint:     endpoint,
		httpClient:   httpClient,
	}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAICompatibleClient) GetProviderName() string {
	return c.providerName
}

// IsConfigured returns true if the client has an API key and base URL.
func (c *OpenAICompatibleClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// StreamChatCompletion sends a streaming chat completion request.
func (c *OpenAICompatibleClient) StreamChatCompletion(ctx context.Context, model string, messages []chattypes.Message) (<-chan chattypes.StreamChunk, error) {
	logger.Debug("OpenAI-compatible StreamChatCompletion starting", "model", model, "baseURL", c.baseURL)

	if !c.IsConfigured() {
		return nil, chattypes.NewTurnError(chattypes.KindConfiguration, "openai-compatible client", errMissingAPIKey(c.providerName))
	}

	request := ChatCompletionRequest{
		Model:    model,
		Messages: convertMessagesToCompatible(messages),
		Stream:   true,
	}

	responseChan := make(chan chattypes.StreamChunk, streamBufferSize)

	go func() {
		defer close(responseChan)
		err := c.sendStreamingHTTPRequest(ctx, request, responseChan)
		finishStream(ctx, responseChan, "http stream", err)
	}()

	return responseChan, nil
}

func convertMessagesToCompatible(messages []chattypes.Message) []ChatCompletionMessage {
	converted := make([]ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chattypes.RoleUser, chattypes.RoleAssistant:
			converted = append(converted, ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}
	return converted
}

// sendStreamingHTTPRequest posts the request and forwards content deltas.
// It returns nil only when the stream ends with the [DONE] sentinel.
func (c *OpenAICompatibleClient) sendStreamingHTTPRequest(ctx context.Context, payload ChatCompletionRequest, responseChan chan<- chattypes.StreamChunk) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + c.endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return c.processStreamingResponse(ctx, resp.Body, responseChan)
}

// processStreamingResponse reads Server-Sent Events line by line.
func (c *OpenAICompatibleClient) processStreamingResponse(ctx context.Context, body io.Reader, responseChan chan<- chattypes.StreamChunk) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		done, err := c.processStreamLine(ctx, scanner.Text(), responseChan)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("stream ended without [DONE]")
}

// processStreamLine handles one SSE line. It reports done on the [DONE] sentinel.
func (c *OpenAICompatibleClient) processStreamLine(ctx context.Context, line string, responseChan chan<- chattypes.StreamChunk) (bool, error) {
	line = strings.TrimSpace(line)

	if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
		return false, nil
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return true, nil
	}

	var chunk ChatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return false, fmt.Errorf("failed to parse stream chunk: %w", err)
	}

	if chunk.Error != nil {
		return false, fmt.Errorf("API error: %s", chunk.Error.Message)
	}

	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
		content := chunk.Choices[0].Delta.Content
		if content != "" {
			if !sendChunk(ctx, responseChan, chattypes.StreamChunk{Content: content}) {
				return false, ctx.Err()
			}
		}
	}

	return false, nil
}
