package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"knowledge-assistant-be/internal/config"
	"knowledge-assistant-be/internal/dto"
	"knowledge-assistant-be/internal/entity"
	"knowledge-assistant-be/internal/repository/specification"
	"knowledge-assistant-be/internal/repository/unitofwork"
	"knowledge-assistant-be/pkg/embedding"
	"knowledge-assistant-be/pkg/events"
	"knowledge-assistant-be/pkg/graphstore"
	pktNats "knowledge-assistant-be/pkg/nats"
	"knowledge-assistant-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	graphStore        *graphstore.Store
	graphExtractor    *graphstore.LLMExtractor
	eventPublisher    *pktNats.Publisher
	workflowCfg       config.WorkflowConfig
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	graphStore *graphstore.Store,
	graphExtractor *graphstore.LLMExtractor,
	eventPublisher *pktNats.Publisher,
	workflowCfg config.WorkflowConfig,
) IConsumerService {
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		graphStore:        graphStore,
		graphExtractor:    graphExtractor,
		eventPublisher:    eventPublisher,
		workflowCfg:       workflowCfg,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.IngestDocumentMessage
	err := json.Unmarshal(msg.Payload, &payload)
	if err != nil {
		log.Printf("[ERROR] Failed to unmarshal message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	log.Printf("[INFO] Processing ingest for DocumentId: %s", payload.DocumentId)

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	document, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: payload.DocumentId})
	if err != nil {
		log.Printf("[ERROR] Failed to get document %s: %v", payload.DocumentId, err)
		msg.Nack() // Nack for retriable errors
		return
	}
	if document == nil {
		log.Printf("[ERROR] Document not found: %s", payload.DocumentId)
		msg.Ack() // Document deleted? Ack.
		return
	}

	if err := uow.DocumentRepository().UpdateStatus(ctx, document.Id, entity.DocumentStatusProcessing, 0); err != nil {
		log.Printf("[ERROR] Failed to mark document %s processing: %v", document.Id, err)
		msg.Nack()
		return
	}

	chunks := utils.SplitText(payload.Content, cs.workflowCfg.ChunkSize, cs.workflowCfg.ChunkOverlap)
	log.Printf("[INFO] Document %s split into %d chunks", document.Id, len(chunks))

	var newChunks []*entity.DocumentChunk

	for i, chunk := range chunks {
		res, err := cs.embeddingProvider.Generate(chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			log.Printf("[ERROR] Failed to generate embedding for chunk %d of document %s: %v", i, document.Id, err)
			cs.markFailed(ctx, document.Id)
			msg.Nack()
			return
		}

		newChunks = append(newChunks, &entity.DocumentChunk{
			Id:             uuid.New(),
			DocumentId:     document.Id,
			Content:        chunk,
			EmbeddingValue: res.Embedding.Values,
			ChunkIndex:     i,
			CreatedAt:      time.Now(),
		})
	}

	if err := uow.Begin(ctx); err != nil {
		log.Printf("[ERROR] Failed to begin transaction: %v", err)
		msg.Nack()
		return
	}
	defer uow.Rollback()

	// Re-ingest replaces the chunk set wholesale
	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, document.Id); err != nil {
		log.Printf("[ERROR] Failed to delete old chunks: %v", err)
		msg.Nack()
		return
	}

	if len(newChunks) > 0 {
		if err := uow.DocumentChunkRepository().CreateBulk(ctx, newChunks); err != nil {
			log.Printf("[ERROR] Failed to create bulk chunks: %v", err)
			msg.Nack()
			return
		}
	}

	if err := uow.DocumentRepository().UpdateStatus(ctx, document.Id, entity.DocumentStatusReady, len(newChunks)); err != nil {
		log.Printf("[ERROR] Failed to mark document %s ready: %v", document.Id, err)
		msg.Nack()
		return
	}

	if err := uow.Commit(); err != nil {
		log.Printf("[ERROR] Failed to commit transaction: %v", err)
		msg.Nack()
		return
	}

	// Graph indexing is best effort; chunks are already retrievable
	// by vector similarity if extraction misbehaves.
	if cs.workflowCfg.GraphEnrichment && cs.graphExtractor != nil {
		cs.indexGraph(ctx, payload.UserId, payload.Filename, newChunks)
	}

	if cs.eventPublisher != nil {
		evt := events.NewDocumentIngested(document.Id.String(), payload.UserId.String(), payload.Filename, len(newChunks))
		if err := cs.eventPublisher.Publish(ctx, evt); err != nil {
			log.Printf("[WARN] Failed to publish DOCUMENT_INGESTED event: %v", err)
		}
	}

	log.Printf("[SUCCESS] Document processed: %d chunks for DocumentId: %s", len(newChunks), document.Id)
	msg.Ack()
}

func (cs *consumerService) indexGraph(ctx context.Context, userId uuid.UUID, filename string, chunks []*entity.DocumentChunk) {
	for _, chunk := range chunks {
		entities, relations, err := cs.graphExtractor.Extract(ctx, chunk.Content)
		if err != nil {
			log.Printf("[WARN] Graph extraction failed for chunk %s: %v", chunk.Id, err)
			continue
		}
		if len(entities) == 0 {
			continue
		}

		snippet := graphSnippet(chunk.Content)
		err = cs.graphStore.IndexChunk(ctx, userId, chunk.Id, filename, snippet, chunk.ChunkIndex, entities, relations)
		if err != nil {
			log.Printf("[WARN] Graph indexing failed for chunk %s: %v", chunk.Id, err)
		}
	}
}

const graphSnippetMaxRunes = 300

// graphSnippet shortens chunk content for the stored mention without
// splitting a multi-byte rune.
func graphSnippet(content string) string {
	runes := []rune(content)
	if len(runes) <= graphSnippetMaxRunes {
		return content
	}
	return string(runes[:graphSnippetMaxRunes])
}

func (cs *consumerService) markFailed(ctx context.Context, documentId uuid.UUID) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.DocumentRepository().UpdateStatus(ctx, documentId, entity.DocumentStatusFailed, 0); err != nil {
		log.Printf("[ERROR] Failed to mark document %s failed: %v", documentId, err)
	}
}
