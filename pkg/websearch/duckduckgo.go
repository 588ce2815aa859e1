package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"knowledge-assistant-be/pkg/agent"
)

const duckDuckGoEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGoClient uses the keyless instant-answer API. Coverage is
// shallower than a paid search API, which is why it is the fallback
// and not the primary provider.
type DuckDuckGoClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

var _ agent.WebSearcher = &DuckDuckGoClient{}

// NewDuckDuckGoClient creates the keyless fallback searcher
func NewDuckDuckGoClient(logger *log.Logger) *DuckDuckGoClient {
	return &DuckDuckGoClient{
		endpoint:   duckDuckGoEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search queries the instant-answer endpoint and maps abstract, answer
// and related topics onto passages.
func (c *DuckDuckGoClient) Search(ctx context.Context, query string) ([]agent.Passage, error) {
	endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1",
		c.endpoint, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var result duckDuckGoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode duckduckgo response: %w", err)
	}

	var passages []agent.Passage
	if result.AbstractText != "" {
		passages = append(passages, agent.Passage{
			Source: result.AbstractURL, Content: result.AbstractText, Score: 0.6,
		})
	}
	if result.Answer != "" {
		passages = append(passages, agent.Passage{
			Source: "duckduckgo.com", Content: result.Answer, Score: 0.6,
		})
	}
	for _, topic := range result.RelatedTopics {
		if len(passages) >= 3 {
			break
		}
		if topic.Text == "" {
			continue
		}
		passages = append(passages, agent.Passage{
			Source: topic.FirstURL, Content: topic.Text, Score: 0.5,
		})
	}
	for i := range passages {
		passages[i].ChunkIndex = i
	}

	c.logger.Printf("[WEBSEARCH] DuckDuckGo returned %d results for %q", len(passages), query)
	return passages, nil
}
