package bootstrap

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"knowledge-assistant-be/internal/config"
	"knowledge-assistant-be/internal/controller"
	"knowledge-assistant-be/internal/pkg/logger"
	"knowledge-assistant-be/internal/repository/memory"
	"knowledge-assistant-be/internal/repository/unitofwork"
	"knowledge-assistant-be/internal/service"
	"knowledge-assistant-be/internal/stream"
	"knowledge-assistant-be/pkg/agent"
	"knowledge-assistant-be/pkg/embedding"
	"knowledge-assistant-be/pkg/graphstore"
	"knowledge-assistant-be/pkg/llm/factory"
	pktNats "knowledge-assistant-be/pkg/nats"
	"knowledge-assistant-be/pkg/websearch"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const ingestTopic = "INGEST_DOCUMENT"

type Container struct {
	ChatController      controller.IChatController
	DocumentController  controller.IDocumentController
	AnalyticsController controller.IAnalyticsController

	StreamHub *stream.Hub

	ConsumerService service.IConsumerService
}

func NewContainer(cfg *config.Config, db *gorm.DB) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "openai" {
		embeddingProvider = embedding.NewOpenAIProvider(cfg.Keys.OpenAI, cfg.Ai.EmbeddingModel)
		log.Printf("[INFO] Using Embedding Provider: OPENAI (%s)", cfg.Ai.EmbeddingModel)
	} else {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)
	}

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.LLMBaseURL,
		cfg.Keys.OpenAI,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// In-memory conversation state
	sessionRepo := memory.NewSessionRepository()

	// 4. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	// Streaming Hub
	streamLogger := logger.NewIsolatedLogger("logs/stream.log")
	streamHub := stream.NewHub(rdb, streamLogger)
	go streamHub.Run()

	// 5. Answering Pipeline
	llmLogger := initLLMLogger()

	router := agent.NewLLMRouter(llmProvider, llmLogger)
	grader := agent.NewLLMGrader(llmProvider, llmLogger)
	rewriter := agent.NewLLMRewriter(llmProvider, llmLogger)
	synthesizer := agent.NewLLMSynthesizer(llmProvider, llmLogger)

	retrieverFactory := service.NewRetrieverFactory(uowFactory, embeddingProvider)

	graphStore := graphstore.NewStore(db)
	var graphExtractor *graphstore.LLMExtractor
	var enricher *graphstore.Enricher
	if cfg.Workflow.GraphEnrichment {
		graphExtractor = graphstore.NewLLMExtractor(llmProvider, llmLogger)
		enricher = graphstore.NewEnricher(graphStore, graphExtractor, llmLogger)
	}

	var webSearcher agent.WebSearcher
	searchers := []agent.WebSearcher{}
	if cfg.Keys.Tavily != "" {
		searchers = append(searchers, websearch.NewTavilyClient(cfg.Keys.Tavily, llmLogger))
	}
	searchers = append(searchers, websearch.NewDuckDuckGoClient(llmLogger))
	webSearcher = websearch.NewFallbackSearcher(llmLogger, searchers...)

	agentCfg := agent.Config{
		MaxIterations:       cfg.Workflow.MaxIterations,
		RetrievalK:          cfg.Workflow.RetrievalK,
		SimilarityThreshold: cfg.Workflow.SimilarityThreshold,
	}

	// 6. Services
	publisherService := service.NewPublisherService(ingestTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		ingestTopic,
		uowFactory,
		embeddingProvider,
		graphStore,
		graphExtractor,
		natsPub,
		cfg.Workflow,
	)

	documentService := service.NewDocumentService(uowFactory, publisherService, graphStore, natsPub)
	chatService := service.NewChatService(
		uowFactory,
		sessionRepo,
		router,
		grader,
		rewriter,
		synthesizer,
		retrieverFactory,
		enricher,
		webSearcher,
		agentCfg,
		streamHub,
		natsPub,
		llmLogger,
	)
	analyticsService := service.NewAnalyticsService(uowFactory)

	// Audit worker over the durable event stream
	if natsSub != nil {
		auditLogger := logger.NewIsolatedLogger("logs/audit.log")
		auditService := service.NewAuditService(natsSub, auditLogger)
		go auditService.Start()
	}

	sysLogger.Info("Bootstrap", "Container wired", map[string]interface{}{
		"llm_provider":      cfg.Ai.LLMProvider,
		"graph_enrichment":  cfg.Workflow.GraphEnrichment,
		"web_search_tavily": cfg.Keys.Tavily != "",
	})

	// 7. Controllers
	return &Container{
		ChatController:      controller.NewChatController(chatService, streamHub),
		DocumentController:  controller.NewDocumentController(documentService),
		AnalyticsController: controller.NewAnalyticsController(analyticsService),

		StreamHub: streamHub,

		ConsumerService: consumerService,
	}
}

func initLLMLogger() *log.Logger {
	logPath := filepath.Join(".", "logs", "llm_workflow.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, "[LLM-WORKFLOW] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}
