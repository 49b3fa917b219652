package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"akashchat/internal/data/embedded"
	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// Provider names accepted in the model catalog.
const (
	ProviderAkash     = "akash"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ModelCatalogService holds the supported model set. It loads the embedded
// YAML catalog unless a catalog file path is configured.
type ModelCatalogService struct {
	path        string
	models      []chattypes.ModelCatalogEntry
	initialized bool
}

// NewModelCatalogService creates a catalog service. An empty path selects the embedded catalog.
func NewModelCatalogService(path string) *ModelCatalogService {
	return &ModelCatalogService{path: path}
}

// Name returns the service name "model_catalog" for registration.
func (m *ModelCatalogService) Name() string {
	return "model_catalog"
}

// Initialize loads and validates the catalog.
func (m *ModelCatalogService) Initialize() error {
	data := embedded.ModelCatalogData
	source := "embedded"
	if m.path != "" {
		fileData, err := os.ReadFile(m.path)
		if err != nil {
			return chattypes.NewTurnError(chattypes.KindConfiguration, "read model catalog", err)
		}
		data = fileData
		source = m.path
	}

	models, err := parseCatalog(data)
	if err != nil {
		return chattypes.NewTurnError(chattypes.KindConfiguration, "load model catalog "+source, err)
	}

	m.models = models
	m.initialized = true
	logger.ServiceOperation("model_catalog", "initialize", "source", source, "models", len(models))
	return nil
}

// Models returns the supported models in catalog order.
func (m *ModelCatalogService) Models() []chattypes.ModelCatalogEntry {
	models := make([]chattypes.ModelCatalogEntry, len(m.models))
	copy(models, m.models)
	return models
}

// Default returns the first catalog entry.
func (m *ModelCatalogService) Default() chattypes.ModelCatalogEntry {
	if len(m.models) == 0 {
		return chattypes.ModelCatalogEntry{}
	}
	return m.models[0]
}

// Resolve maps a model identifier to its catalog entry. Lookup is
// case-insensitive and an empty id resolves to the default model.
// Unknown ids fail with an UnsupportedModel error.
func (m *ModelCatalogService) Resolve(id string) (chattypes.ModelCatalogEntry, error) {
	if !m.initialized {
		return chattypes.ModelCatalogEntry{}, chattypes.NewTurnError(chattypes.KindConfiguration, "resolve model", fmt.Errorf("model catalog service not initialized"))
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return m.Default(), nil
	}

	normalizedID := normalizeModelID(id)
	for _, model := range m.models {
		if normalizeModelID(model.ID) == normalizedID {
			return model, nil
		}
	}

	return chattypes.ModelCatalogEntry{}, chattypes.NewTurnError(chattypes.KindUnsupportedModel, "resolve model", fmt.Errorf("model %q is not in the supported set", id))
}

// IsSupported reports whether id resolves to a catalog entry.
func (m *ModelCatalogService) IsSupported(id string) bool {
	_, err := m.Resolve(id)
	return err == nil
}

func parseCatalog(data []byte) ([]chattypes.ModelCatalogEntry, error) {
	var catalog chattypes.ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	if len(catalog.Models) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}

	seenIDs := make(map[string]string)
	for i := range catalog.Models {
		model := &catalog.Models[i]
		if model.ID == "" {
			return nil, fmt.Errorf("model at position %d has empty id", i)
		}
		if model.Provider == "" {
			model.Provider = ProviderAkash
		}
		switch model.Provider {
		case ProviderAkash, ProviderAnthropic, ProviderGemini:
		default:
			return nil, fmt.Errorf("model %s has unknown provider %q", model.ID, model.Provider)
		}
		if model.DisplayName == "" {
			model.DisplayName = model.ID
		}

		normalizedID := normalizeModelID(model.ID)
		if existingID, exists := seenIDs[normalizedID]; exists {
			return nil, fmt.Errorf("duplicate model ID found: '%s' and '%s' (case insensitive)", existingID, model.ID)
		}
		seenIDs[normalizedID] = model.ID
	}

	return catalog.Models, nil
}

func normalizeModelID(id string) string {
	return strings.ToUpper(id)
}
