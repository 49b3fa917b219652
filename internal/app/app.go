// Package app wires the akashchat services from a resolved configuration.
// Both the browser server and the terminal shell start from Build.
package app

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"akashchat/internal/config"
	"akashchat/internal/logger"
	"akashchat/internal/observability"
	"akashchat/internal/services"
	"akashchat/pkg/chattypes"
)

// App holds the initialized services.
type App struct {
	Config   *config.Config
	Registry *services.Registry

	Catalog   *services.ModelCatalogService
	Transport *services.DebugTransportService
	Search    *services.SerperSearchService
	Clients   *services.ClientFactoryService
	Sessions  *services.ChatSessionService
	Turns     *services.TurnService
	Thinking  *services.ThinkingRendererService
	Metrics   *observability.TurnMetrics
}

// Build creates, registers and initializes every service in dependency order.
// Metrics are registered with reg.
func Build(cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: services.NewRegistry(),
	}

	a.Catalog = services.NewModelCatalogService(cfg.CatalogFile)
	a.Transport = services.NewDebugTransportService(cfg.DebugHTTP, http.DefaultTransport)
	a.Search = services.NewSerperSearchService(cfg.SerperAPIKey, cfg.SearchURL,
		a.Transport.NewClient(cfg.SearchTimeout))
	a.Clients = services.NewClientFactoryService(services.ClientFactoryConfig{
		AkashAPIKey:       cfg.AkashAPIKey,
		AnthropicAPIKey:   cfg.AnthropicAPIKey,
		GoogleAPIKey:      cfg.GoogleAPIKey,
		CompletionBaseURL: cfg.CompletionBaseURL,
		Transport:         cfg.CompletionTransport,
		HTTPClient:        a.Transport.NewClient(cfg.CompletionTimeout),
	}, a.Catalog)
	a.Sessions = services.NewChatSessionService(cfg.SessionTTL, chattypes.SessionSettings{})
	a.Metrics = observability.NewTurnMetrics(reg)
	a.Turns = services.NewTurnService(a.Clients, a.Search, a.Metrics)
	a.Thinking = services.NewThinkingRendererService()

	for _, svc := range []chattypes.Service{
		a.Catalog,
		a.Transport,
		a.Search,
		a.Clients,
		a.Sessions,
		a.Turns,
		a.Thinking,
	} {
		if err := a.Registry.RegisterService(svc); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", svc.Name(), err)
		}
	}

	if err := a.Registry.InitializeAll(); err != nil {
		return nil, err
	}

	// New sessions start on the first catalog model with web search off.
	a.Sessions.SetDefaultSettings(chattypes.SessionSettings{SelectedModel: a.Catalog.Default().ID})

	logger.Info("Services initialized",
		"services", len(a.Registry.Names()),
		"default_model", a.Catalog.Default().ID,
		"web_search", a.Turns.SearchAvailable(),
		"transport", cfg.CompletionTransport)
	return a, nil
}
