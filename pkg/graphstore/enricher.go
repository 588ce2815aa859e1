package graphstore

import (
	"context"
	"log"

	"github.com/google/uuid"

	"knowledge-assistant-be/pkg/agent"
)

// enrichmentLimit bounds how many graph passages one query can add
const enrichmentLimit = 3

// Enricher expands a retrieved passage set with chunks reachable
// through the knowledge graph. It is scoped per user at call-site via
// ForUser because the workflow contract carries no identity.
type Enricher struct {
	store     *Store
	extractor *LLMExtractor
	logger    *log.Logger
}

// NewEnricher creates the graph-backed passage enricher
func NewEnricher(store *Store, extractor *LLMExtractor, logger *log.Logger) *Enricher {
	return &Enricher{
		store:     store,
		extractor: extractor,
		logger:    logger,
	}
}

// ForUser binds the enricher to one user's graph
func (e *Enricher) ForUser(userID uuid.UUID) agent.GraphEnricher {
	return &userEnricher{parent: e, userID: userID}
}

type userEnricher struct {
	parent *Enricher
	userID uuid.UUID
}

var _ agent.GraphEnricher = &userEnricher{}

// Enrich appends neighborhood passages after the retrieved set.
// The input is never reordered or truncated; duplicates by chunk are
// filtered against what retrieval already returned.
func (u *userEnricher) Enrich(ctx context.Context, query string, passages []agent.Passage) ([]agent.Passage, error) {
	names, err := u.parent.extractor.EntityNames(ctx, query)
	if err != nil || len(names) == 0 {
		return passages, err
	}

	mentions, err := u.parent.store.NeighborMentions(ctx, u.userID, names, enrichmentLimit*2)
	if err != nil {
		return passages, err
	}

	seen := make(map[string]bool, len(passages))
	for _, p := range passages {
		seen[p.Source+"#"+p.Content[:min(len(p.Content), 64)]] = true
	}

	out := passages
	added := 0
	for _, m := range mentions {
		if added >= enrichmentLimit {
			break
		}
		key := m.Source + "#" + m.Snippet[:min(len(m.Snippet), 64)]
		if seen[key] || m.Snippet == "" {
			continue
		}
		seen[key] = true

		out = append(out, agent.Passage{
			Source:     m.Source,
			Content:    m.Snippet,
			Score:      0.5, // graph hops carry no similarity score
			ChunkIndex: m.ChunkIdx,
		})
		added++
	}

	if added > 0 {
		u.parent.logger.Printf("[GRAPH] Enriched with %d neighborhood passages", added)
	}
	return out, nil
}
