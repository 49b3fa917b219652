package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// OpenAIClientConfig holds configuration for the SDK-backed OpenAI-compatible client.
type OpenAIClientConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
}

// OpenAIClient streams chat completions from an OpenAI-compatible endpoint
// (the Akash Chat API by default) through the official openai-go SDK.
// The SDK client is created lazily on first use; SDK retries are disabled.
type OpenAIClient struct {
	providerName string
	apiKey       string
	baseURL      string
	httpClient   *http.Client

	once    sync.Once
	client  *openai.Client
	initErr error
}

// NewOpenAIClient creates a new OpenAI-compatible client with lazy initialization.
func NewOpenAIClient(config OpenAIClientConfig) *OpenAIClient {
	providerName := config.ProviderName
	if providerName == "" {
		providerName = ProviderAkash
	}
	return &OpenAIClient{
		providerName: providerName,
		apiKey:       config.APIKey,
		baseURL:      config.BaseURL,
		httpClient:   config.HTTPClient,
	}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAIClient) GetProviderName() string {
	return c.providerName
}

// IsConfigured returns true if the client has an API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *OpenAIClient) initializeClientIfNeeded() error {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = chattypes.NewTurnError(chattypes.KindConfiguration, "openai client", errMissingAPIKey(c.providerName))
			return
		}

		options := []option.RequestOption{
			option.WithAPIKey(c.apiKey),
			option.WithMaxRetries(0),
		}
		if c.baseURL != "" {
			options = append(options, option.WithBaseURL(strings.TrimRight(c.baseURL, "/")+"/"))
		}
		if c.httpClient != nil {
			options = append(options, option.WithHTTPClient(c.httpClient))
		}

		client := openai.NewClient(options...)
		c.client = &client
		logger.Debug("OpenAI client initialized", "provider", c.providerName, "base_url", c.baseURL)
	})
	return c.initErr
}

// StreamChatCompletion opens a streaming chat completion. Connection and
// HTTP status errors surface on the final chunk as CompletionFailure, as does
// a stream that ends before any choice reports a finish_reason.
func (c *OpenAIClient) StreamChatCompletion(ctx context.Context, model string, messages []chattypes.Message) (<-chan chattypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertMessagesToOpenAI(messages),
	}
	logger.Debug("Sending streaming completion", "provider", c.providerName, "model", model, "message_count", len(messages))

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	responseChan := make(chan chattypes.StreamChunk, streamBufferSize)

	go func() {
		defer close(responseChan)
		defer func() {
			_ = stream.Close()
		}()

		finished := false
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finished = true
			}
			if choice.Delta.Content == "" {
				continue
			}
			if !sendChunk(ctx, responseChan, chattypes.StreamChunk{Content: choice.Delta.Content}) {
				return
			}
		}

		err := stream.Err()
		if err == nil && !finished {
			err = errors.New("stream ended without finish_reason")
		}
		finishStream(ctx, responseChan, "openai stream", err)
	}()

	return responseChan, nil
}

// convertMessagesToOpenAI maps history roles onto SDK message params.
func convertMessagesToOpenAI(messages []chattypes.Message) []openai.ChatCompletionMessageParamUnion {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chattypes.RoleUser:
			converted = append(converted, openai.UserMessage(msg.Content))
		case chattypes.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			continue
		}
	}
	return converted
}
