package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"akashchat/internal/config"
	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// ClientFactoryConfig holds the credentials and transport choices for completion clients.
type ClientFactoryConfig struct {
	AkashAPIKey       string
	AnthropicAPIKey   string
	GoogleAPIKey      string
	CompletionBaseURL string
	Transport         string // config.TransportSDK or config.TransportHTTP
	HTTPClient        *http.Client
}

// ClientFactoryService creates and caches one completion client per provider
// and routes each completion to the client of the model's catalog entry.
// It is itself a CompletionClient: unknown models are rejected with
// UnsupportedModel before any network I/O.
type ClientFactoryService struct {
	config  ClientFactoryConfig
	catalog *ModelCatalogService

	initialized bool
	clients     map[string]chattypes.CompletionClient
	mutex       sync.RWMutex
}

// NewClientFactoryService creates a new ClientFactoryService instance.
func NewClientFactoryService(cfg ClientFactoryConfig, catalog *ModelCatalogService) *ClientFactoryService {
	return &ClientFactoryService{
		config:  cfg,
		catalog: catalog,
		clients: make(map[string]chattypes.CompletionClient),
	}
}

// Name returns the service name "client_factory" for registration.
func (f *ClientFactoryService) Name() string {
	return "client_factory"
}

// Initialize checks that the catalog is present.
func (f *ClientFactoryService) Initialize() error {
	if f.catalog == nil {
		return fmt.Errorf("client factory requires a model catalog")
	}
	f.initialized = true
	logger.ServiceOperation("client_factory", "initialize", "transport", f.config.Transport)
	return nil
}

// SetClient installs a client for a provider, replacing any cached one.
func (f *ClientFactoryService) SetClient(provider string, client chattypes.CompletionClient) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.clients[provider] = client
}

// GetClientForProvider returns the cached client for provider, creating it on first use.
func (f *ClientFactoryService) GetClientForProvider(provider string) (chattypes.CompletionClient, error) {
	f.mutex.RLock()
	client, exists := f.clients[provider]
	f.mutex.RUnlock()
	if exists {
		return client, nil
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if client, exists := f.clients[provider]; exists {
		return client, nil
	}

	switch provider {
	case ProviderAkash:
		if f.config.Transport == config.TransportHTTP {
			client = NewOpenAICompatibleClient(OpenAICompatibleConfig{
				ProviderName: ProviderAkash,
				APIKey:       f.config.AkashAPIKey,
				BaseURL:      f.config.CompletionBaseURL,
				HTTPClient:   f.config.HTTPClient,
			})
		} else {
			client = NewOpenAIClient(OpenAIClientConfig{
				ProviderName: ProviderAkash,
				APIKey:       f.config.AkashAPIKey,
				BaseURL:      f.config.CompletionBaseURL,
				HTTPClient:   f.config.HTTPClient,
			})
		}
	case ProviderAnthropic:
		client = NewAnthropicClient(f.config.AnthropicAPIKey, f.config.HTTPClient)
	case ProviderGemini:
		client = NewGeminiClient(f.config.GoogleAPIKey, f.config.HTTPClient)
	default:
		return nil, chattypes.NewTurnError(chattypes.KindConfiguration, "client factory",
			fmt.Errorf("unsupported provider '%s'. Supported providers: %s, %s, %s", provider, ProviderAkash, ProviderAnthropic, ProviderGemini))
	}

	f.clients[provider] = client
	logger.Debug("Created new provider client", "provider", provider)
	return client, nil
}

// GetProviderName returns "router"; the concrete provider depends on the model.
func (f *ClientFactoryService) GetProviderName() string {
	return "router"
}

// IsConfigured reports whether the default model's provider has credentials.
func (f *ClientFactoryService) IsConfigured() bool {
	if !f.initialized {
		return false
	}
	client, err := f.GetClientForProvider(f.catalog.Default().Provider)
	return err == nil && client.IsConfigured()
}

// StreamChatCompletion resolves model through the catalog and delegates to
// the provider client with the canonical model id.
func (f *ClientFactoryService) StreamChatCompletion(ctx context.Context, model string, messages []chattypes.Message) (<-chan chattypes.StreamChunk, error) {
	if !f.initialized {
		return nil, chattypes.NewTurnError(chattypes.KindConfiguration, "client factory", fmt.Errorf("client factory service not initialized"))
	}

	entry, err := f.catalog.Resolve(model)
	if err != nil {
		return nil, err
	}

	client, err := f.GetClientForProvider(entry.Provider)
	if err != nil {
		return nil, err
	}
	if !client.IsConfigured() {
		return nil, chattypes.NewTurnError(chattypes.KindConfiguration, "client factory", errMissingAPIKey(entry.Provider))
	}

	return client.StreamChatCompletion(ctx, entry.ID, messages)
}
