package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"knowledge-assistant-be/pkg/agent"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient queries the Tavily search API and maps results onto the
// passage shape retrieval uses, so web results flow through the same
// grading contract as internal ones.
type TavilyClient struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
	logger     *log.Logger
}

var _ agent.WebSearcher = &TavilyClient{}

// NewTavilyClient creates a Tavily-backed web searcher
func NewTavilyClient(apiKey string, logger *log.Logger) *TavilyClient {
	return &TavilyClient{
		apiKey:     apiKey,
		endpoint:   tavilyEndpoint,
		maxResults: 3,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one Tavily query. Results carry their URL as source so
// citations stay distinguishable from knowledge-base provenance.
func (c *TavilyClient) Search(ctx context.Context, query string) ([]agent.Passage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("tavily api key not configured")
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:      c.apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  c.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var result tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tavily response: %w", err)
	}

	passages := make([]agent.Passage, 0, len(result.Results))
	for i, r := range result.Results {
		if r.Content == "" {
			continue
		}
		passages = append(passages, agent.Passage{
			Source:     r.URL,
			Content:    r.Content,
			Score:      r.Score,
			ChunkIndex: i,
		})
	}

	c.logger.Printf("[WEBSEARCH] Tavily returned %d results for %q", len(passages), query)
	return passages, nil
}
