package http

import (
	"context"
	"fmt"

	"RAGLink/internal/config"
	embeddingGateway "RAGLink/internal/gateway/embedding"
	llmGateway "RAGLink/internal/gateway/llm"
	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/initial"
	jwtMiddleware "RAGLink/internal/middleware/jwt"
	convService "RAGLink/internal/modules/conversation/application/service"
	convNl2sql "RAGLink/internal/modules/conversation/infrastructure/nl2sql"
	convPersistence "RAGLink/internal/modules/conversation/infrastructure/persistence"
	convPipeline "RAGLink/internal/modules/conversation/infrastructure/pipeline"
	convQueue "RAGLink/internal/modules/conversation/infrastructure/queue"
	"RAGLink/internal/modules/conversation/infrastructure/references"
	convSearch "RAGLink/internal/modules/conversation/infrastructure/search"
	"RAGLink/internal/modules/conversation/infrastructure/suggestion"
	convHandler "RAGLink/internal/modules/conversation/interface/http"
	sourceService "RAGLink/internal/modules/source/application/service"
	"RAGLink/internal/modules/source/infrastructure/chunking"
	"RAGLink/internal/modules/source/infrastructure/database"
	"RAGLink/internal/modules/source/infrastructure/pdfext"
	sourcePipeline "RAGLink/internal/modules/source/infrastructure/pipeline"
	sourcePersistence "RAGLink/internal/modules/source/infrastructure/persistence"
	sourceQueue "RAGLink/internal/modules/source/infrastructure/queue"
	"RAGLink/internal/modules/source/infrastructure/storage"
	"RAGLink/internal/modules/source/infrastructure/summary"
	"RAGLink/internal/modules/source/infrastructure/tabular"
	sourceHandler "RAGLink/internal/modules/source/interface/http"
	userService "RAGLink/internal/modules/user/application/service"
	userPersistence "RAGLink/internal/modules/user/infrastructure/persistence"
	userHandler "RAGLink/internal/modules/user/interface/http"
	"RAGLink/internal/mq"
	"RAGLink/internal/mq/kafka"
	"RAGLink/pkg/ssl"
	"RAGLink/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var GE *gin.Engine

// 消费端由 main 启动
var (
	ExtractWorker      *sourceQueue.ExtractConsumerWorker
	ConversationWorker *convQueue.ConversationConsumerWorker
	Publisher          mq.Publisher
)

func init() {
	conf := config.GetConfig()
	ctx := context.Background()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))

	// AI 网关
	embedder, embMeta, err := embeddingGateway.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("embedder init failed: %v", err))
	}
	zlog.Info(fmt.Sprintf("embedder ready: provider=%s model=%s dim=%d", embMeta.Provider, embMeta.Model, embMeta.Dim))

	chatModel, chatMeta, err := llmGateway.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("chat model init failed: %v", err))
	}
	zlog.Info(fmt.Sprintf("chat model ready: provider=%s model=%s", chatMeta.Provider, chatMeta.Model))

	vectorDim := initial.MilvusVectorDim(conf)
	vs, err := vectordb.NewMilvusStore(initial.MilvusClient, initial.MilvusCollectionName(conf), vectorDim, entity.COSINE)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("milvus store init failed: %v", err))
	}

	// Kafka
	if err := kafka.EnsureTopic(
		kafka.TopicAdminConfig{Brokers: conf.KafkaConfig.Brokers, ClientID: conf.KafkaConfig.ClientID},
		conf.KafkaConfig.ExtractTopic, conf.KafkaConfig.Partitions, conf.KafkaConfig.Replication,
	); err != nil {
		zlog.Fatal(fmt.Sprintf("ensure extract topic failed: %v", err))
	}
	if err := kafka.EnsureTopic(
		kafka.TopicAdminConfig{Brokers: conf.KafkaConfig.Brokers, ClientID: conf.KafkaConfig.ClientID},
		conf.KafkaConfig.ConversationTopic, conf.KafkaConfig.Partitions, conf.KafkaConfig.Replication,
	); err != nil {
		zlog.Fatal(fmt.Sprintf("ensure conversation topic failed: %v", err))
	}
	Publisher, err = kafka.NewSaramaPublisher(kafka.PublisherConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal(fmt.Sprintf("kafka publisher init failed: %v", err))
	}

	// source 模块
	fileRepo := sourcePersistence.NewSourceFileRepository(initial.GormDB)
	chunkRepo := sourcePersistence.NewSourceFileChunkRepository(initial.GormDB)
	tableRepo := sourcePersistence.NewSourceFileTableRepository(initial.GormDB)

	store, err := storage.NewLocalStore(conf.StorageConfig.RootPath)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("local store init failed: %v", err))
	}
	provisioner := database.NewProvisioner(conf.SourceDBConfig)
	summarizer := summary.NewSummarizer(chatModel)

	pdfPipe, err := sourcePipeline.NewPDFIngestPipeline(
		fileRepo, chunkRepo,
		pdfext.NewExtractor(),
		chunking.NewSemanticChunker(embedder),
		chunking.NewChildSplitter(300, 50),
		summarizer, embedder, vs, vectorDim,
	)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("pdf pipeline init failed: %v", err))
	}
	structuredPipe, err := sourcePipeline.NewStructuredIngestPipeline(
		fileRepo, tableRepo,
		tabular.NewLoader(),
		provisioner, summarizer, embedder, vs, vectorDim,
	)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("structured pipeline init failed: %v", err))
	}

	sourceSvc := sourceService.NewSourceService(
		fileRepo, chunkRepo, tableRepo,
		store, provisioner, vs,
		Publisher, conf.KafkaConfig.ExtractTopic,
	)

	// conversation 模块
	sessionRepo := convPersistence.NewChatSessionRepository(initial.GormDB)
	messageRepo := convPersistence.NewChatMessageRepository(initial.GormDB)

	hybridEngine := convSearch.NewHybridEngine(chunkRepo, embedder, vs, llmGateway.NewChatModelReranker(chatModel), chatModel)
	nl2sqlEngine := convNl2sql.NewEngine(tableRepo, provisioner, chatModel)
	extractor := references.NewExtractor(fileRepo)
	suggester := suggestion.NewSuggester(fileRepo, chatModel)

	conversationPipe, err := convPipeline.NewConversationPipeline(
		sessionRepo, messageRepo, fileRepo,
		hybridEngine, nl2sqlEngine,
		embedder, vs, chatModel, extractor,
	)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("conversation pipeline init failed: %v", err))
	}

	conversationSvc := convService.NewConversationService(
		sessionRepo, messageRepo, suggester,
		Publisher, conf.KafkaConfig.ConversationTopic,
	)

	// 消费端
	extractConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		GroupID:  conf.KafkaConfig.ExtractGroupID,
		Topics:   []string{conf.KafkaConfig.ExtractTopic},
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal(fmt.Sprintf("extract consumer init failed: %v", err))
	}
	ExtractWorker = sourceQueue.NewExtractConsumerWorker(
		extractConsumer, fileRepo, pdfPipe, structuredPipe,
		conf.KafkaConfig.ExtractConcurrency,
	)

	conversationConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		GroupID:  conf.KafkaConfig.ConversationGroupID,
		Topics:   []string{conf.KafkaConfig.ConversationTopic},
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal(fmt.Sprintf("conversation consumer init failed: %v", err))
	}
	ConversationWorker = convQueue.NewConversationConsumerWorker(
		conversationConsumer, messageRepo, conversationPipe,
		conf.KafkaConfig.ConversationConcurrency,
	)

	// user 模块
	userRepo := userPersistence.NewUserInfoRepository(initial.GormDB)
	userSvc := userService.NewUserInfoService(userRepo)

	userH := userHandler.NewUserInfoHandler(userSvc)
	sourceH := sourceHandler.NewSourceHandler(sourceSvc)
	convH := convHandler.NewConversationHandler(conversationSvc)

	GE.POST("/login", userH.Login)
	GE.POST("/register", userH.Register)

	authed := GE.Group("/")
	authed.Use(jwtMiddleware.Auth())
	authed.GET("/auth/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"uuid":     c.GetString("uuid"),
			"username": c.GetString("username"),
		})
	})
	authed.POST("/source/files", sourceH.Upload)
	authed.GET("/source/files", sourceH.List)
	authed.GET("/source/files/:id", sourceH.Get)
	authed.DELETE("/source/files/:id", sourceH.Delete)
	authed.POST("/source/files/:id/reprocess", sourceH.Reprocess)

	authed.POST("/conversation/ask", convH.Ask)
	authed.GET("/conversation/history", convH.History)
	authed.DELETE("/conversation/history", convH.ClearHistory)
	authed.GET("/conversation/messages/:id", convH.GetMessage)
	authed.GET("/conversation/suggestions", convH.Suggestions)
}
