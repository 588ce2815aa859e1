package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-assistant-be/pkg/agent"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestTavilySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.APIKey)
		assert.Equal(t, "golang generics", req.Query)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"title": "Go Blog", "url": "https://go.dev/blog/intro-generics", "content": "Generics landed in Go 1.18.", "score": 0.91},
				{"title": "Empty", "url": "https://example.com", "content": "", "score": 0.4},
			},
		})
	}))
	defer server.Close()

	client := NewTavilyClient("test-key", testLogger())
	client.endpoint = server.URL

	passages, err := client.Search(context.Background(), "golang generics")
	require.NoError(t, err)

	// empty-content results are dropped
	require.Len(t, passages, 1)
	assert.Equal(t, "https://go.dev/blog/intro-generics", passages[0].Source)
	assert.Equal(t, "Generics landed in Go 1.18.", passages[0].Content)
	assert.InDelta(t, 0.91, passages[0].Score, 0.001)
}

func TestTavilySearchRequiresAPIKey(t *testing.T) {
	client := NewTavilyClient("", testLogger())
	_, err := client.Search(context.Background(), "anything")
	assert.Error(t, err)
}

func TestTavilySearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewTavilyClient("test-key", testLogger())
	client.endpoint = server.URL

	_, err := client.Search(context.Background(), "anything")
	assert.Error(t, err)
}

func TestDuckDuckGoSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test query", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"AbstractText": "An abstract answer.",
			"AbstractURL":  "https://en.wikipedia.org/wiki/Test",
			"Answer":       "",
			"RelatedTopics": []map[string]interface{}{
				{"Text": "Related topic one", "FirstURL": "https://example.com/1"},
			},
		})
	}))
	defer server.Close()

	client := NewDuckDuckGoClient(testLogger())
	client.endpoint = server.URL

	passages, err := client.Search(context.Background(), "test query")
	require.NoError(t, err)

	require.Len(t, passages, 2)
	assert.Equal(t, "An abstract answer.", passages[0].Content)
	assert.Equal(t, 0, passages[0].ChunkIndex)
	assert.Equal(t, 1, passages[1].ChunkIndex)
}

type stubSearcher struct {
	passages []agent.Passage
	err      error
	calls    int
}

func (s *stubSearcher) Search(_ context.Context, _ string) ([]agent.Passage, error) {
	s.calls++
	return s.passages, s.err
}

func TestFallbackSearcherSkipsFailingProvider(t *testing.T) {
	broken := &stubSearcher{err: fmt.Errorf("quota exceeded")}
	working := &stubSearcher{passages: []agent.Passage{{Source: "https://x", Content: "hit"}}}

	searcher := NewFallbackSearcher(testLogger(), broken, working)
	passages, err := searcher.Search(context.Background(), "q")
	require.NoError(t, err)

	assert.Len(t, passages, 1)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, working.calls)
}

func TestFallbackSearcherSkipsEmptyProvider(t *testing.T) {
	empty := &stubSearcher{}
	working := &stubSearcher{passages: []agent.Passage{{Source: "https://x", Content: "hit"}}}

	searcher := NewFallbackSearcher(testLogger(), empty, working)
	passages, err := searcher.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, passages, 1)
}

func TestFallbackSearcherAllFail(t *testing.T) {
	broken := &stubSearcher{err: fmt.Errorf("down")}
	searcher := NewFallbackSearcher(testLogger(), broken)

	_, err := searcher.Search(context.Background(), "q")
	assert.Error(t, err)
}
