package websearch

import (
	"context"
	"log"

	"knowledge-assistant-be/pkg/agent"
)

// FallbackSearcher tries providers in order and returns the first
// non-empty result set. A provider error moves on to the next one
// rather than failing the search.
type FallbackSearcher struct {
	providers []agent.WebSearcher
	logger    *log.Logger
}

var _ agent.WebSearcher = &FallbackSearcher{}

// NewFallbackSearcher chains searchers by priority
func NewFallbackSearcher(logger *log.Logger, providers ...agent.WebSearcher) *FallbackSearcher {
	return &FallbackSearcher{providers: providers, logger: logger}
}

func (f *FallbackSearcher) Search(ctx context.Context, query string) ([]agent.Passage, error) {
	var lastErr error
	for _, p := range f.providers {
		passages, err := p.Search(ctx, query)
		if err != nil {
			f.logger.Printf("[WEBSEARCH] Provider failed, trying next: %v", err)
			lastErr = err
			continue
		}
		if len(passages) > 0 {
			return passages, nil
		}
	}
	return nil, lastErr
}
