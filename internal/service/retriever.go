package service

import (
	"context"
	"fmt"

	"knowledge-assistant-be/internal/repository/unitofwork"
	"knowledge-assistant-be/pkg/agent"
	"knowledge-assistant-be/pkg/embedding"

	"github.com/google/uuid"
)

// RetrieverFactory produces per-user retrievers over the vector index.
// The workflow sees plain passages; ownership filtering happens in the
// similarity query itself.
type RetrieverFactory struct {
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
}

func NewRetrieverFactory(
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
) *RetrieverFactory {
	return &RetrieverFactory{
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
	}
}

func (f *RetrieverFactory) ForUser(userId uuid.UUID) agent.Retriever {
	return &vectorRetriever{
		uowFactory:        f.uowFactory,
		embeddingProvider: f.embeddingProvider,
		userId:            userId,
	}
}

type vectorRetriever struct {
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	userId            uuid.UUID
}

var _ agent.Retriever = &vectorRetriever{}

func (r *vectorRetriever) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]agent.Passage, error) {
	embeddingResult, err := r.embeddingProvider.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	uow := r.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.DocumentChunkRepository().SearchSimilarWithScore(
		ctx,
		embeddingResult.Embedding.Values,
		k,
		r.userId,
		threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	passages := make([]agent.Passage, 0, len(scored))
	for _, s := range scored {
		passages = append(passages, agent.Passage{
			Source:     s.Source,
			Content:    s.Chunk.Content,
			Score:      s.Similarity,
			ChunkIndex: s.Chunk.ChunkIndex,
		})
	}
	return passages, nil
}
