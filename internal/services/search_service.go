package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// SearchResultLimit is the number of organic results used as prompt context.
const SearchResultLimit = 3

// maxSearchErrorBody bounds how much of a failed response is kept in the error.
const maxSearchErrorBody = 512

// SerperSearchService is the search adapter backed by the Serper Google search API.
// It performs a single POST per query and never retries.
type SerperSearchService struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// serperRequest is the request body sent to the search endpoint.
type serperRequest struct {
	Q string `json:"q"`
}

// serperResponse holds the part of the search response that is used.
type serperResponse struct {
	Organic []chattypes.SearchResult `json:"organic"`
}

// NewSerperSearchService creates a search adapter. client may be nil.
func NewSerperSearchService(apiKey, endpoint string, client *http.Client) *SerperSearchService {
	if client == nil {
		client = http.DefaultClient
	}
	return &SerperSearchService{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   client,
	}
}

// Name returns the service name "search" for registration.
func (s *SerperSearchService) Name() string {
	return "search"
}

// Initialize validates the endpoint.
func (s *SerperSearchService) Initialize() error {
	if s.endpoint == "" {
		return chattypes.NewTurnError(chattypes.KindConfiguration, "search", fmt.Errorf("search endpoint is empty"))
	}
	logger.ServiceOperation("search", "initialize", "configured", s.IsConfigured())
	return nil
}

// IsConfigured returns true when an API key is present.
func (s *SerperSearchService) IsConfigured() bool {
	return s.apiKey != ""
}

// Search queries the provider and returns the formatted snippet text of the
// first results in provider order. An absent or empty result list yields "".
func (s *SerperSearchService) Search(ctx context.Context, query string) (string, error) {
	results, err := s.SearchResults(ctx, query)
	if err != nil {
		return "", err
	}
	return FormatSearchResults(results), nil
}

// SearchResults queries the provider and returns at most SearchResultLimit entries.
func (s *SerperSearchService) SearchResults(ctx context.Context, query string) ([]chattypes.SearchResult, error) {
	if !s.IsConfigured() {
		return nil, chattypes.NewTurnError(chattypes.KindConfiguration, "search", fmt.Errorf("SERPER_API_KEY is not set"))
	}

	payload, err := json.Marshal(serperRequest{Q: query})
	if err != nil {
		return nil, chattypes.NewTurnError(chattypes.KindSearchFailure, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, chattypes.NewTurnError(chattypes.KindSearchFailure, "create request", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("Sending search request", "endpoint", s.endpoint, "query_length", len(query))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, chattypes.NewTurnError(chattypes.KindSearchFailure, "send request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, chattypes.NewTurnError(chattypes.KindSearchFailure, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxSearchErrorBody {
			snippet = snippet[:maxSearchErrorBody]
		}
		return nil, chattypes.NewTurnError(chattypes.KindSearchFailure, "search",
			fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(snippet)))
	}

	var parsed serperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, chattypes.NewTurnError(chattypes.KindSearchFailure, "decode response", err)
	}

	results := parsed.Organic
	if len(results) > SearchResultLimit {
		results = results[:SearchResultLimit]
	}

	logger.Debug("Search completed", "organic", len(parsed.Organic), "used", len(results))
	return results, nil
}

// FormatSearchResults renders results as three lines each
// ("Title: ", "URL: ", "Snippet: ") with a blank line between results.
func FormatSearchResults(results []chattypes.SearchResult) string {
	lines := make([]string, 0, len(results)*3)
	for _, r := range results {
		lines = append(lines,
			"Title: "+r.Title,
			"URL: "+r.URL,
			"Snippet: "+r.Snippet+"\n",
		)
	}
	return strings.Join(lines, "\n")
}
