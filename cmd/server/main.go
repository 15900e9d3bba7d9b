// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/config"
	"legal-rag-go/internal/handler"
	"legal-rag-go/internal/middleware"
	"legal-rag-go/internal/model"
	"legal-rag-go/internal/pipeline"
	"legal-rag-go/internal/repository"
	"legal-rag-go/internal/service"
	"legal-rag-go/internal/vectorindex"
	"legal-rag-go/pkg/database"
	"legal-rag-go/pkg/embedding"
	"legal-rag-go/pkg/es"
	"legal-rag-go/pkg/kafka"
	"legal-rag-go/pkg/llm"
	"legal-rag-go/pkg/log"
	"legal-rag-go/pkg/storage"
	"legal-rag-go/pkg/telemetry"
	"legal-rag-go/pkg/tika"
	"legal-rag-go/pkg/token"
)

func main() {
	// 0. 本地开发时从 .env 读取 LEGALRAG_ 前缀的环境变量
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	shutdownTracer, err := telemetry.InitTracer(rootCtx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("初始化 tracer 失败: %v", err)
	}

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN, &model.Document{}, &model.KnowledgeEntry{})
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 初始化 Embedding 与向量集合
	embeddingClient, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		log.Fatalf("初始化 embedding 客户端失败: %v", err)
	}
	if cfg.Embedding.CacheEnabled {
		embeddingClient = embedding.NewCachedClient(embeddingClient, database.RDB, time.Duration(cfg.Embedding.CacheTTLSeconds)*time.Second)
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.Embedding.Dimensions, cfg.Embedding.BatchSize)
	if err := embedder.Warmup(rootCtx); err != nil {
		log.Warnf("embedding 预热失败，将使用配置的维度 %d: %v", embedder.Dimension(), err)
	}

	knowledgeColl, documentColl, err := openCollections(rootCtx, cfg, embedder.Dimension())
	if err != nil {
		log.Fatalf("初始化向量集合失败: %v", err)
	}

	// 5. 初始化生成模型
	backend, err := llm.NewBackend(rootCtx, cfg.LLM)
	if err != nil {
		log.Fatalf("初始化 LLM 后端失败: %v", err)
	}
	if closer, ok := backend.(io.Closer); ok {
		defer closer.Close()
	}
	generator := llm.NewClient(backend, cfg.LLM)

	// 6. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	knowledgeRepo := repository.NewKnowledgeRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)

	// 7. 初始化 Service (依赖注入)
	ingestService := service.NewIngestService(
		chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		embedder,
		knowledgeColl,
		documentColl,
		cfg.VectorIndex.Backend,
	)
	retriever := service.NewRetriever(embedder, knowledgeColl, documentColl)
	ragService := service.NewRAGService(retriever, generator, docRepo, cfg.RAG)
	conversationService := service.NewConversationService(conversationRepo)
	chatService := service.NewChatService(ragService, conversationService)
	knowledgeService := service.NewKnowledgeService(knowledgeRepo, ingestService)

	store, err := openPayloadStore(rootCtx, cfg.MinIO)
	if err != nil {
		log.Fatalf("初始化对象存储失败: %v", err)
	}
	var extractor tika.Extractor = tika.PDFExtractor{}
	if cfg.Tika.ServerURL != "" {
		extractor = tika.FallbackExtractor{Primary: tika.NewClient(cfg.Tika), Fallback: tika.PDFExtractor{}}
	}

	// 8. 初始化文档处理管道：有 Kafka 时异步消费，否则进程内单协程处理
	processor := pipeline.NewProcessor(docRepo, store, ingestService)
	var (
		queue      service.IngestQueue
		closeQueue func()
	)
	if strings.TrimSpace(cfg.Kafka.Brokers) != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		queue = producer
		closeQueue = func() {
			if err := producer.Close(); err != nil {
				log.Warnf("关闭 Kafka producer 失败: %v", err)
			}
		}
		go kafka.StartConsumer(rootCtx, cfg.Kafka, processor, database.RDB)
	} else {
		inline := pipeline.NewInlineQueue(rootCtx, processor, 256)
		queue = inline
		closeQueue = inline.Close
		log.Info("未配置 Kafka，使用进程内处理队列")
	}
	documentService := service.NewDocumentService(docRepo, ingestService, store, queue, extractor)

	sweeper := pipeline.NewSweeper(docRepo, cfg.Pipeline)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("启动文档巡检任务失败: %v", err)
	}

	// 8.1 导入 knowledge_seed 目录中的法律资料，已导入则跳过
	go pipeline.SeedKnowledge(rootCtx, "knowledge_seed", extractor, pipeline.NewSeedCreator(knowledgeService))

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(
		middleware.Tracing(cfg.Telemetry.ServiceName),
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.RequestLogger(),
		gin.Recovery(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "vector_backend": cfg.VectorIndex.Backend})
	})

	chatHandler := handler.NewChatHandler(chatService)
	documentHandler := handler.NewDocumentHandler(documentService, ragService)
	knowledgeHandler := handler.NewKnowledgeHandler(knowledgeService)
	statsHandler := handler.NewStatsHandler(ingestService)

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager), middleware.EnrichTrace())
	{
		apiV1.POST("/chat/query", chatHandler.Query)
		apiV1.DELETE("/chat/sessions/:id", chatHandler.EndSession)

		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Register)
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/query", documentHandler.Query)
			documents.POST("/:id/analyze", documentHandler.Analyze)
		}

		apiV1.GET("/stats", statsHandler.UserStats)

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.POST("/knowledge", knowledgeHandler.Create)
			admin.GET("/knowledge", knowledgeHandler.List)
			admin.DELETE("/knowledge/:id", knowledgeHandler.Delete)
			admin.GET("/stats", statsHandler.AdminStats)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 排空进程内队列后再取消后台任务
	sweeper.Stop()
	closeQueue()
	cancelRoot()
	shutdownTracer(ctx)
	log.Info("服务已优雅关闭")
}

// openCollections 按配置选择向量集合后端。
func openCollections(ctx context.Context, cfg config.Config, dims int) (vectorindex.Collection, vectorindex.Collection, error) {
	if !strings.EqualFold(cfg.VectorIndex.Backend, "elasticsearch") {
		log.Infof("使用内存向量集合, dims=%d", dims)
		return vectorindex.NewMemoryCollection(cfg.VectorIndex.KnowledgeCollection),
			vectorindex.NewMemoryCollection(cfg.VectorIndex.DocumentCollection), nil
	}

	client, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		return nil, nil, err
	}
	knowledge := es.NewCollection(client, cfg.VectorIndex.KnowledgeCollection, dims)
	documents := es.NewCollection(client, cfg.VectorIndex.DocumentCollection, dims)
	for _, coll := range []*es.Collection{knowledge, documents} {
		if err := coll.EnsureIndex(ctx); err != nil {
			return nil, nil, err
		}
	}
	return knowledge, documents, nil
}

// openPayloadStore 未配置 MinIO 时退化为内存存储，仅适用于单进程开发环境。
func openPayloadStore(ctx context.Context, cfg config.MinIOConfig) (storage.PayloadStore, error) {
	if cfg.Endpoint == "" {
		log.Warnf("未配置 MinIO，抽取文本保存在内存中")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewMinIOStore(ctx, cfg)
}
