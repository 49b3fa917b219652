package services

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// defaultAnthropicMaxTokens is sent with every request; the Messages API requires it.
const defaultAnthropicMaxTokens = 4096

// AnthropicClient streams completions for catalog entries with provider "anthropic".
type AnthropicClient struct {
	apiKey     string
	httpClient *http.Client

	once    sync.Once
	client  *anthropic.Client
	initErr error
}

// NewAnthropicClient creates a new Anthropic client with lazy initialization.
func NewAnthropicClient(apiKey string, httpClient *http.Client) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// GetProviderName returns the provider name for this client.
func (c *AnthropicClient) GetProviderName() string {
	return ProviderAnthropic
}

// IsConfigured returns true if the client has a valid API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *AnthropicClient) initializeClientIfNeeded() error {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = chattypes.NewTurnError(chattypes.KindConfiguration, "anthropic client", errMissingAPIKey(ProviderAnthropic))
			return
		}

		options := []option.RequestOption{
			option.WithAPIKey(c.apiKey),
			option.WithMaxRetries(0),
		}
		if c.httpClient != nil {
			options = append(options, option.WithHTTPClient(c.httpClient))
		}

		client := anthropic.NewClient(options...)
		c.client = &client
		logger.Debug("Anthropic client initialized", "provider", ProviderAnthropic)
	})
	return c.initErr
}

// StreamChatCompletion opens a streaming Messages API request and forwards text deltas.
func (c *AnthropicClient) StreamChatCompletion(ctx context.Context, model string, messages []chattypes.Message) (<-chan chattypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  convertMessagesToAnthropic(messages),
	}
	logger.Debug("Sending Anthropic streaming request", "model", model, "message_count", len(messages))

	stream := c.client.Messages.NewStreaming(ctx, params)
	responseChan := make(chan chattypes.StreamChunk, streamBufferSize)

	go func() {
		defer close(responseChan)
		defer func() {
			_ = stream.Close()
		}()

		stopped := false
		for stream.Next() {
			event := stream.Current()
			if _, ok := event.AsAny().(anthropic.MessageStopEvent); ok {
				stopped = true
				continue
			}
			deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta)
			if !ok || textDelta.Text == "" {
				continue
			}
			if !sendChunk(ctx, responseChan, chattypes.StreamChunk{Content: textDelta.Text}) {
				return
			}
		}

		err := stream.Err()
		if err == nil && !stopped {
			err = errors.New("stream ended without message_stop")
		}
		finishStream(ctx, responseChan, "anthropic stream", err)
	}()

	return responseChan, nil
}

func convertMessagesToAnthropic(messages []chattypes.Message) []anthropic.MessageParam {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chattypes.RoleUser:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chattypes.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return converted
}
