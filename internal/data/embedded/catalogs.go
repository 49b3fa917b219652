// Package embedded provides access to data files compiled into the binary.
package embedded

import _ "embed"

// ModelCatalogData contains the embedded model catalog YAML data.
// The first model listed is the default selection.
//
//go:embed models.yaml
var ModelCatalogData []byte
