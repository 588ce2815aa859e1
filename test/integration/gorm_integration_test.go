package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"knowledge-assistant-be/internal/entity"
	"knowledge-assistant-be/internal/repository/specification"
	"knowledge-assistant-be/internal/repository/unitofwork"
	"knowledge-assistant-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.DocumentRepository())
	assert.NotNil(t, uow.DocumentChunkRepository())
	assert.NotNil(t, uow.QueryLogRepository())

	sqlDB, _ := gormDB.DB()
	err = sqlDB.Ping()
	assert.NoError(t, err)
	t.Log("Successfully connected to DB and initialized UnitOfWork Factory")

	t.Run("Check Document Repository", func(t *testing.T) {
		count, err := uow.DocumentRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("Document count: %d", count)
	})

	t.Run("Check Document Chunk Repository", func(t *testing.T) {
		count, err := uow.DocumentChunkRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("DocumentChunk count: %d", count)
	})

	t.Run("Check Transactional Chat Exchange", func(t *testing.T) {
		ctx := context.Background()
		userId := uuid.New()

		chatSession := &entity.ChatSession{
			Id:        uuid.New(),
			UserId:    userId,
			Title:     "Integration session",
			CreatedAt: time.Now(),
		}
		err := uow.ChatSessionRepository().Create(ctx, chatSession)
		assert.NoError(t, err)

		err = uow.Begin(ctx)
		assert.NoError(t, err)
		defer uow.Rollback()

		message := &entity.ChatMessage{
			Id:            uuid.New(),
			ChatSessionId: chatSession.Id,
			Role:          "assistant",
			Content:       "integration answer",
			Intent:        "knowledge_search",
			Confidence:    0.8,
			CreatedAt:     time.Now(),
		}
		err = uow.ChatMessageRepository().Create(ctx, message)
		assert.NoError(t, err)

		citations := []*entity.ChatCitation{
			{
				Id:            uuid.New(),
				ChatMessageId: message.Id,
				Source:        "integration.md",
				Preview:       "integration preview",
				Score:         0.8,
				ChunkIndex:    0,
				CreatedAt:     time.Now(),
			},
		}
		err = uow.ChatCitationRepository().CreateBulk(ctx, citations)
		assert.NoError(t, err)

		err = uow.Commit()
		assert.NoError(t, err)

		found, err := uow.ChatMessageRepository().FindOne(ctx,
			specification.ByID{ID: message.Id},
		)
		assert.NoError(t, err)
		assert.NotNil(t, found)

		// Cleanup
		cleanup := uowFactory.NewUnitOfWork(ctx)
		assert.NoError(t, cleanup.ChatMessageRepository().DeleteBySessionId(ctx, chatSession.Id))
		assert.NoError(t, cleanup.ChatSessionRepository().Delete(ctx, chatSession.Id))
	})

	t.Run("Check Query Log Stats", func(t *testing.T) {
		stats, err := uow.QueryLogRepository().Stats(context.Background(), uuid.Nil)
		assert.NoError(t, err)
		assert.NotNil(t, stats)
		t.Logf("Total queries logged: %d", stats.TotalQueries)
	})
}
