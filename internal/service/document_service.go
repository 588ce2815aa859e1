package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"knowledge-assistant-be/internal/dto"
	"knowledge-assistant-be/internal/entity"
	"knowledge-assistant-be/internal/repository/specification"
	"knowledge-assistant-be/internal/repository/unitofwork"
	"knowledge-assistant-be/pkg/events"
	"knowledge-assistant-be/pkg/graphstore"
	pktNats "knowledge-assistant-be/pkg/nats"

	"github.com/google/uuid"
)

type IDocumentService interface {
	Upload(ctx context.Context, userId uuid.UUID, filename, contentType string, content []byte) (*dto.UploadDocumentResponse, error)
	Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowDocumentResponse, error)
	List(ctx context.Context, userId uuid.UUID) ([]*dto.ShowDocumentResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
}

type documentService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
	graphStore       *graphstore.Store
	eventPublisher   *pktNats.Publisher
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	graphStore *graphstore.Store,
	eventPublisher *pktNats.Publisher,
) IDocumentService {
	return &documentService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
		graphStore:       graphStore,
		eventPublisher:   eventPublisher,
	}
}

func (s *documentService) Upload(ctx context.Context, userId uuid.UUID, filename, contentType string, content []byte) (*dto.UploadDocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	document := entity.Document{
		Id:          uuid.New(),
		UserId:      userId,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		Status:      entity.DocumentStatusPending,
		CreatedAt:   time.Now(),
	}
	if err := uow.DocumentRepository().Create(ctx, &document); err != nil {
		return nil, err
	}

	msgPayload := dto.IngestDocumentMessage{
		DocumentId: document.Id,
		UserId:     userId,
		Filename:   filename,
		Content:    string(content),
	}
	msgJson, err := json.Marshal(msgPayload)
	if err != nil {
		return nil, err
	}
	if err := s.publisherService.Publish(ctx, msgJson); err != nil {
		return nil, err
	}

	return &dto.UploadDocumentResponse{
		Id:       document.Id,
		Filename: document.Filename,
		Status:   document.Status,
	}, nil
}

func (s *documentService) Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowDocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	document, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, nil
	}
	return documentToResponse(document), nil
}

func (s *documentService) List(ctx context.Context, userId uuid.UUID) ([]*dto.ShowDocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	documents, err := uow.DocumentRepository().FindAll(ctx,
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.ShowDocumentResponse, 0, len(documents))
	for _, document := range documents {
		responses = append(responses, documentToResponse(document))
	}
	return responses, nil
}

// Delete removes the document, its chunks and their graph mentions.
// The chunk ids must be collected before the chunks go away.
func (s *documentService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	document, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return err
	}
	if document == nil {
		return fmt.Errorf("document not found")
	}

	chunks, err := uow.DocumentChunkRepository().FindAll(ctx,
		specification.ByDocumentID{DocumentID: id},
	)
	if err != nil {
		return err
	}
	chunkIds := make([]uuid.UUID, 0, len(chunks))
	for _, chunk := range chunks {
		chunkIds = append(chunkIds, chunk.Id)
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	// Graph cleanup is outside the transaction; mentions pointing at
	// deleted chunks are harmless until this completes.
	if len(chunkIds) > 0 {
		if err := s.graphStore.DeleteByChunks(ctx, chunkIds); err != nil {
			fmt.Printf("[WARN] Failed to delete graph mentions for document %s: %v\n", id, err)
		}
	}

	if s.eventPublisher != nil {
		evt := events.NewDocumentDeleted(id.String(), userId.String())
		if err := s.eventPublisher.Publish(ctx, evt); err != nil {
			fmt.Printf("[WARN] Failed to publish DOCUMENT_DELETED event: %v\n", err)
		}
	}

	return nil
}

func documentToResponse(document *entity.Document) *dto.ShowDocumentResponse {
	return &dto.ShowDocumentResponse{
		Id:         document.Id,
		Filename:   document.Filename,
		Status:     document.Status,
		ChunkCount: document.ChunkCount,
		CreatedAt:  document.CreatedAt,
		UpdatedAt:  document.UpdatedAt,
	}
}
