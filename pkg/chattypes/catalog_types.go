package chattypes

// ModelCatalogEntry describes one selectable model.
type ModelCatalogEntry struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Provider    string `yaml:"provider" json:"provider"`
	Description string `yaml:"description" json:"description"`
	Reasoning   bool   `yaml:"reasoning" json:"reasoning"`
}

// ModelCatalog is the ordered set of supported models. The first entry is the default.
type ModelCatalog struct {
	Models []ModelCatalogEntry `yaml:"models" json:"models"`
}
