package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"knowledge-assistant-be/internal/dto"
	"knowledge-assistant-be/internal/entity"
	"knowledge-assistant-be/internal/repository/memory"
	"knowledge-assistant-be/internal/repository/specification"
	"knowledge-assistant-be/internal/repository/unitofwork"
	"knowledge-assistant-be/internal/stream"
	"knowledge-assistant-be/pkg/agent"
	"knowledge-assistant-be/pkg/events"
	"knowledge-assistant-be/pkg/graphstore"
	"knowledge-assistant-be/pkg/llm"
	pktNats "knowledge-assistant-be/pkg/nats"
	"knowledge-assistant-be/pkg/store"

	"github.com/google/uuid"
)

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"

	sessionTitleMaxRunes = 60
)

type IChatService interface {
	CreateSession(ctx context.Context, userId uuid.UUID) (*dto.CreateSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error)
	GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, request *dto.DeleteSessionRequest) error
	Ask(ctx context.Context, userId uuid.UUID, request *dto.AskRequest) (*dto.AskResponse, error)
	AskStream(ctx context.Context, userId uuid.UUID, request *dto.AskRequest) (<-chan agent.Event, uuid.UUID, error)
}

// chatService drives the answering workflow and owns everything around
// it: session lifecycle, history, persistence, analytics and fan-out.
type chatService struct {
	uowFactory  unitofwork.RepositoryFactory
	sessionRepo *memory.SessionRepository

	router      agent.Router
	grader      agent.Grader
	rewriter    agent.Rewriter
	synthesizer agent.Synthesizer

	retrieverFactory *RetrieverFactory
	enricher         *graphstore.Enricher // nil when graph enrichment is disabled
	webSearcher      agent.WebSearcher    // nil when no provider is configured

	agentCfg agent.Config

	streamHub      *stream.Hub
	eventPublisher *pktNats.Publisher
	llmLogger      *log.Logger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	sessionRepo *memory.SessionRepository,
	router agent.Router,
	grader agent.Grader,
	rewriter agent.Rewriter,
	synthesizer agent.Synthesizer,
	retrieverFactory *RetrieverFactory,
	enricher *graphstore.Enricher,
	webSearcher agent.WebSearcher,
	agentCfg agent.Config,
	streamHub *stream.Hub,
	eventPublisher *pktNats.Publisher,
	llmLogger *log.Logger,
) IChatService {
	return &chatService{
		uowFactory:       uowFactory,
		sessionRepo:      sessionRepo,
		router:           router,
		grader:           grader,
		rewriter:         rewriter,
		synthesizer:      synthesizer,
		retrieverFactory: retrieverFactory,
		enricher:         enricher,
		webSearcher:      webSearcher,
		agentCfg:         agentCfg,
		streamHub:        streamHub,
		eventPublisher:   eventPublisher,
		llmLogger:        llmLogger,
	}
}

func (cs *chatService) CreateSession(ctx context.Context, userId uuid.UUID) (*dto.CreateSessionResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	chatSession := entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     "Unnamed session",
		CreatedAt: time.Now(),
	}
	if err := uow.ChatSessionRepository().Create(ctx, &chatSession); err != nil {
		return nil, err
	}

	return &dto.CreateSessionResponse{Id: chatSession.Id}, nil
}

func (cs *chatService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetAllSessionsResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, &dto.GetAllSessionsResponse{
			Id:        s.Id,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return responses, nil
}

func (cs *chatService) GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	chatSession, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if chatSession == nil {
		return nil, fmt.Errorf("chat session not found")
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetChatHistoryResponse, 0, len(messages))
	for _, m := range messages {
		item := &dto.GetChatHistoryResponse{
			Id:            m.Id,
			Role:          m.Role,
			Content:       m.Content,
			Intent:        m.Intent,
			Confidence:    m.Confidence,
			WebSearchUsed: m.WebSearchUsed,
			CreatedAt:     m.CreatedAt,
		}

		if m.Role == ChatMessageRoleAssistant {
			citations, err := uow.ChatCitationRepository().FindAll(ctx,
				specification.ByChatMessageID{ChatMessageID: m.Id},
			)
			if err != nil {
				return nil, err
			}
			for _, c := range citations {
				item.Citations = append(item.Citations, dto.CitationDTO{
					Source:         c.Source,
					ContentPreview: c.Preview,
					Score:          c.Score,
					ChunkIndex:     c.ChunkIndex,
				})
			}
		}

		responses = append(responses, item)
	}
	return responses, nil
}

func (cs *chatService) DeleteSession(ctx context.Context, userId uuid.UUID, request *dto.DeleteSessionRequest) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	chatSession, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: request.ChatSessionId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return err
	}
	if chatSession == nil {
		return fmt.Errorf("chat session not found")
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteBySessionId(ctx, request.ChatSessionId); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, request.ChatSessionId); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	cs.sessionRepo.Delete(request.ChatSessionId.String())
	return nil
}

// Ask runs one query to completion and returns the aggregated answer
func (cs *chatService) Ask(ctx context.Context, userId uuid.UUID, request *dto.AskRequest) (*dto.AskResponse, error) {
	chatSession, memSession, err := cs.prepare(ctx, userId, request)
	if err != nil {
		return nil, err
	}

	workflow := cs.buildWorkflow(userId)
	input := agent.Input{
		Query:     request.Query,
		SessionID: chatSession.Id.String(),
		UserID:    userId.String(),
		History:   historyMessages(memSession),
	}

	result, err := workflow.Invoke(ctx, input, cs.agentCfg)
	if err != nil {
		return nil, err
	}

	messageId, err := cs.persistExchange(ctx, userId, chatSession, memSession, request.Query, result)
	if err != nil {
		return nil, err
	}

	return &dto.AskResponse{
		ChatSessionId:    chatSession.Id,
		MessageId:        messageId,
		Response:         result.Response,
		Intent:           string(result.Intent),
		Confidence:       result.Confidence,
		Citations:        dto.CitationsFromAgent(result.Citations),
		Reasoning:        result.Reasoning,
		WebSearchUsed:    result.WebSearchUsed,
		IterationCount:   result.IterationCount,
		ProcessingTimeMs: result.ProcessingTimeMs,
	}, nil
}

// AskStream runs one query and returns the live event stream. Events
// are mirrored to the websocket hub so other devices on the session
// can follow along. Persistence happens when the stream completes.
func (cs *chatService) AskStream(ctx context.Context, userId uuid.UUID, request *dto.AskRequest) (<-chan agent.Event, uuid.UUID, error) {
	chatSession, memSession, err := cs.prepare(ctx, userId, request)
	if err != nil {
		return nil, uuid.Nil, err
	}

	workflow := cs.buildWorkflow(userId)
	input := agent.Input{
		Query:     request.Query,
		SessionID: chatSession.Id.String(),
		UserID:    userId.String(),
		History:   historyMessages(memSession),
	}

	upstream := workflow.Run(ctx, input, cs.agentCfg)
	out := make(chan agent.Event, 8)

	go func() {
		defer close(out)

		result := &agent.Result{}
		failed := false

		for ev := range upstream {
			if cs.streamHub != nil {
				cs.streamHub.Publish(chatSession.Id, ev)
			}

			switch ev.Type {
			case agent.EventMetadata:
				result.Intent = ev.Metadata.Intent
				result.Confidence = ev.Metadata.Confidence
				result.Reasoning = ev.Metadata.Reasoning
				result.RetrievalGrade = ev.Metadata.RetrievalGrade
				result.WebSearchUsed = ev.Metadata.WebSearchUsed
				result.IterationCount = ev.Metadata.IterationCount
				result.ProcessingTimeMs = ev.Metadata.ProcessingTimeMs
			case agent.EventToken:
				result.Response += ev.Token
			case agent.EventCitations:
				result.Citations = ev.Citations
			case agent.EventError:
				failed = true
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		if failed {
			return
		}

		// Persist with a fresh context; the caller may disconnect the
		// moment the done event arrives.
		persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := cs.persistExchange(persistCtx, userId, chatSession, memSession, request.Query, result); err != nil {
			log.Printf("[ERROR] Failed to persist streamed exchange for session %s: %v", chatSession.Id, err)
		}
	}()

	return out, chatSession.Id, nil
}

// prepare resolves the chat session and its conversation memory
func (cs *chatService) prepare(ctx context.Context, userId uuid.UUID, request *dto.AskRequest) (*entity.ChatSession, *store.Session, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	var chatSession *entity.ChatSession
	if request.ChatSessionId == uuid.Nil {
		chatSession = &entity.ChatSession{
			Id:        uuid.New(),
			UserId:    userId,
			Title:     titleFromQuery(request.Query),
			CreatedAt: time.Now(),
		}
		if err := uow.ChatSessionRepository().Create(ctx, chatSession); err != nil {
			return nil, nil, err
		}
	} else {
		found, err := uow.ChatSessionRepository().FindOne(ctx,
			specification.ByID{ID: request.ChatSessionId},
			specification.ByUserID{UserID: userId},
		)
		if err != nil {
			return nil, nil, err
		}
		if found == nil {
			return nil, nil, fmt.Errorf("chat session not found")
		}
		chatSession = found
	}

	memSession, ok := cs.sessionRepo.Get(chatSession.Id.String())
	if !ok {
		memSession = cs.rebuildSession(ctx, uow, chatSession, userId)
	}

	return chatSession, memSession, nil
}

// rebuildSession reloads conversation memory from the database after a
// cache miss or a restart
func (cs *chatService) rebuildSession(ctx context.Context, uow unitofwork.UnitOfWork, chatSession *entity.ChatSession, userId uuid.UUID) *store.Session {
	memSession := &store.Session{
		ID:        chatSession.Id.String(),
		UserID:    userId.String(),
		UpdatedAt: time.Now(),
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: chatSession.Id},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: store.HistoryLimit},
	)
	if err != nil {
		log.Printf("[WARN] Failed to load history for session %s: %v", chatSession.Id, err)
		return memSession
	}

	// Reverse back to chronological order
	for i := len(messages) - 1; i >= 0; i-- {
		memSession.AppendTurn(messages[i].Role, messages[i].Content)
	}
	return memSession
}

func (cs *chatService) buildWorkflow(userId uuid.UUID) *agent.Workflow {
	var enricher agent.GraphEnricher
	if cs.enricher != nil {
		enricher = cs.enricher.ForUser(userId)
	}

	return agent.NewWorkflow(
		cs.router,
		cs.retrieverFactory.ForUser(userId),
		enricher,
		cs.grader,
		cs.rewriter,
		cs.webSearcher,
		cs.synthesizer,
		cs.llmLogger,
	)
}

// persistExchange writes both turns, citations and the query log, then
// refreshes conversation memory and publishes the analytics event
func (cs *chatService) persistExchange(
	ctx context.Context,
	userId uuid.UUID,
	chatSession *entity.ChatSession,
	memSession *store.Session,
	query string,
	result *agent.Result,
) (uuid.UUID, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	now := time.Now()

	userMessage := entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: chatSession.Id,
		Role:          ChatMessageRoleUser,
		Content:       query,
		CreatedAt:     now,
	}
	assistantMessage := entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: chatSession.Id,
		Role:          ChatMessageRoleAssistant,
		Content:       result.Response,
		Intent:        string(result.Intent),
		Confidence:    result.Confidence,
		WebSearchUsed: result.WebSearchUsed,
		CreatedAt:     now.Add(time.Millisecond),
	}

	if err := uow.Begin(ctx); err != nil {
		return uuid.Nil, err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().Create(ctx, &userMessage); err != nil {
		return uuid.Nil, err
	}
	if err := uow.ChatMessageRepository().Create(ctx, &assistantMessage); err != nil {
		return uuid.Nil, err
	}

	if len(result.Citations) > 0 {
		citations := make([]*entity.ChatCitation, 0, len(result.Citations))
		for _, c := range result.Citations {
			citations = append(citations, &entity.ChatCitation{
				Id:            uuid.New(),
				ChatMessageId: assistantMessage.Id,
				Source:        c.Source,
				Preview:       c.ContentPreview,
				Score:         c.Score,
				ChunkIndex:    c.ChunkIndex,
				CreatedAt:     now,
			})
		}
		if err := uow.ChatCitationRepository().CreateBulk(ctx, citations); err != nil {
			return uuid.Nil, err
		}
	}

	queryLog := entity.QueryLog{
		Id:             uuid.New(),
		UserId:         userId,
		ChatSessionId:  chatSession.Id,
		Query:          query,
		Intent:         string(result.Intent),
		Confidence:     result.Confidence,
		RetrievalGrade: string(result.RetrievalGrade),
		WebSearchUsed:  result.WebSearchUsed,
		Iterations:     result.IterationCount,
		Declined:       result.Confidence == 0 && result.Intent == agent.IntentKnowledgeSearch,
		LatencyMs:      result.ProcessingTimeMs,
		Metadata: map[string]interface{}{
			"citation_count": len(result.Citations),
		},
		CreatedAt: now,
	}
	if err := uow.QueryLogRepository().Create(ctx, &queryLog); err != nil {
		return uuid.Nil, err
	}

	if err := uow.Commit(); err != nil {
		return uuid.Nil, err
	}

	memSession.AppendTurn(ChatMessageRoleUser, query)
	memSession.AppendTurn(ChatMessageRoleAssistant, result.Response)
	memSession.LastQuery = query
	memSession.LastIntent = string(result.Intent)
	cs.sessionRepo.Save(memSession)

	if cs.eventPublisher != nil {
		evt := events.NewQueryAnswered(
			chatSession.Id.String(),
			userId.String(),
			query,
			string(result.Intent),
			result.Confidence,
			result.WebSearchUsed,
			result.IterationCount,
			result.ProcessingTimeMs,
		)
		if err := cs.eventPublisher.Publish(ctx, evt); err != nil {
			log.Printf("[WARN] Failed to publish query event: %v", err)
		}
	}

	return assistantMessage.Id, nil
}

func historyMessages(memSession *store.Session) []llm.Message {
	messages := make([]llm.Message, 0, len(memSession.History))
	for _, turn := range memSession.History {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

func titleFromQuery(query string) string {
	runes := []rune(query)
	if len(runes) <= sessionTitleMaxRunes {
		return query
	}
	return string(runes[:sessionTitleMaxRunes]) + "..."
}
