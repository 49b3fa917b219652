package testutils

import (
	"context"
	"sync"
)

// ScriptedSearchClient returns a fixed result text or error.
type ScriptedSearchClient struct {
	Result       string
	Err          error
	Unconfigured bool

	mu      sync.Mutex
	queries []string
}

// NewScriptedSearchClient returns a configured client answering with result.
func NewScriptedSearchClient(result string) *ScriptedSearchClient {
	return &ScriptedSearchClient{Result: result}
}

// Search implements chattypes.SearchClient.
func (s *ScriptedSearchClient) Search(_ context.Context, query string) (string, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Result, nil
}

// IsConfigured implements chattypes.SearchClient.
func (s *ScriptedSearchClient) IsConfigured() bool {
	return !s.Unconfigured
}

// Queries returns every query received, in order.
func (s *ScriptedSearchClient) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}
