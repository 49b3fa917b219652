package chattypes

import "context"

// SearchResult is one organic result returned by the search provider.
// Fields the provider omits are empty strings.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchClient is the search service adapter contract.
type SearchClient interface {
	// Search returns the formatted snippet text for the top results of query.
	// An empty string with a nil error means the provider returned nothing.
	Search(ctx context.Context, query string) (string, error)

	// IsConfigured returns true if the client has the credentials it needs.
	IsConfigured() bool
}
