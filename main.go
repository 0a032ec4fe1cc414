package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"hire-realtime/internal/chat"
	"hire-realtime/internal/config"
	"hire-realtime/internal/db"
	"hire-realtime/internal/evaluation"
	"hire-realtime/internal/extract"
	grpcclient "hire-realtime/internal/grpc"
	"hire-realtime/internal/handlers"
	"hire-realtime/internal/llm"
	"hire-realtime/internal/middleware"
	"hire-realtime/internal/notify"
	"hire-realtime/internal/observability"
	"hire-realtime/internal/queue"
	"hire-realtime/internal/rabbitmq"
	"hire-realtime/internal/ratelimit"
	"hire-realtime/internal/repositories"
	"hire-realtime/internal/storage"
	"hire-realtime/internal/telemetry"
	"hire-realtime/internal/worker"
	"hire-realtime/internal/ws"
)

type stores struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	jobs          repositories.EvaluationRepository
	close         func() error
}

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, cfg.Server.ServiceName, cfg.Server.Environment, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer st.close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.Server.ServiceName, cfg.Server.Environment, logger)

	authConn, err := grpcclient.Dial(cfg.Auth.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to connect to auth grpc", zap.Error(err))
	}
	defer authConn.Close()
	authClient := grpcclient.NewAuthClient(authConn)

	hub := ws.NewHub(ws.NewPresence(), logger)
	if err := hub.Initialize(); err != nil {
		logger.Fatal("failed to start socket hub", zap.Error(err))
	}

	limiter := ratelimit.New(cfg.RateLimitRules(chat.ActionSendMessage, evaluation.ActionEvaluate))
	go limiter.Run(ctx, cfg.RateLimit.JanitorInterval, logger)

	coordinator := chat.NewCoordinator(st.conversations, st.messages, hub, logger, chat.WithLimiter(limiter))
	notifier := notify.NewNotifier(hub, logger)

	files := storage.NewLocal(cfg.Storage.UploadDir, cfg.Storage.BaseURL)
	if err := files.EnsureDir(); err != nil {
		logger.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	scorer, err := newScorer(ctx, cfg.Scoring, logger)
	if err != nil {
		logger.Fatal("failed to init scoring providers", zap.Error(err))
	}
	runner := evaluation.NewRunner(scorer, cfg.Scoring.Models, logger,
		evaluation.WithAttempts(cfg.Scoring.AttemptsPerModel),
		evaluation.WithBaseDelay(cfg.Scoring.BaseDelay),
		evaluation.WithAttemptTimeout(cfg.Scoring.AttemptTimeout))

	jobQueue, durable := newJobQueue(cfg, logger)
	defer jobQueue.Close()

	orchestrator := evaluation.NewOrchestrator(st.jobs, extract.NewRegistry(), runner, files, jobQueue, hub, logger,
		evaluation.WithLimiter(limiter),
		evaluation.WithMaxFileSize(cfg.Storage.MaxFileSize))
	reporter := evaluation.NewReporter(st.jobs, logger)

	var poolOpts []worker.Option
	if !durable {
		poolOpts = append(poolOpts, worker.WithRecovery(st.jobs, cfg.Worker.RecoveryLimit))
	}
	pool := worker.NewPool(jobQueue, orchestrator, cfg.Worker.Concurrency, logger, poolOpts...)
	if err := pool.Start(ctx); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}
	go reporter.RunCleanup(ctx, cfg.Cleanup.Interval, cfg.Cleanup.MaxAge, cfg.Cleanup.MaxCount)

	healthServer := grpcclient.NewHealthServer(logger)
	healthServer.SetServing(true)
	go func() {
		if err := healthServer.Serve(ctx, cfg.Auth.HealthAddr); err != nil {
			logger.Error("grpc health server stopped", zap.Error(err))
		}
	}()

	socketRouter := ws.NewRouter(cfg.Server.SocketTimeout, logger)
	handlers.NewSocketEvents(hub, coordinator, reporter).Register(socketRouter)
	socketHandler := ws.NewSocketHandler(hub, socketRouter, authClient, logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Server.ServiceName))
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", socketHandler.Handle)

	authed := router.Group("/", middleware.AuthMiddleware(authClient))
	handlers.NewConversationHandler(coordinator, logger).Register(authed)
	handlers.NewEvaluationHandler(orchestrator, reporter, cfg.Storage.MaxFileSize, logger).Register(authed)
	handlers.NewPresenceHandler(hub.Presence()).Register(authed)
	handlers.NewNotificationHandler(notifier, logger).Register(authed)

	admin := router.Group("/", middleware.AuthMiddleware(authClient), middleware.RequireRole("admin"))
	handlers.NewQueueHandler(reporter, audit, cfg.Cleanup.MaxAge, cfg.Cleanup.MaxCount, logger).Register(admin)
	handlers.RegisterDebugRoutes(admin, audit, cfg.Server.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("socket hub shutdown", zap.Error(err))
	}
	pool.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	return logger.With(zap.String("service", cfg.Server.ServiceName))
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stores, error) {
	if cfg.Database.InMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		mem := repositories.NewMemoryStore()
		return stores{conversations: mem, messages: mem, jobs: mem, close: func() error { return nil }}, nil
	}

	database, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return stores{}, err
	}
	return stores{
		conversations: repositories.NewConversationRepo(database),
		messages:      repositories.NewMessageRepo(database),
		jobs:          repositories.NewEvaluationRepo(database),
		close:         database.Close,
	}, nil
}

// newScorer routes gemini-* models to Gemini and gpt-* models to OpenAI.
// Models without a configured provider fail fast and the runner moves on.
func newScorer(ctx context.Context, cfg config.ScoringConfig, logger *zap.Logger) (llm.Scorer, error) {
	router := llm.NewRouter(nil)
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.Temperature, int32(cfg.MaxTokens))
		if err != nil {
			return nil, err
		}
		router.Route("gemini", gemini)
	}
	if cfg.OpenAIAPIKey != "" {
		router.Route("gpt", llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.MaxTokens, cfg.Temperature))
	}
	if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey == "" {
		logger.Warn("no scoring provider configured, evaluations will fail")
	}
	return router, nil
}

// newJobQueue prefers the durable RabbitMQ queue and reports whether it got it.
func newJobQueue(cfg *config.Config, logger *zap.Logger) (queue.Queue, bool) {
	if cfg.AMQP.URL != "" {
		q, err := queue.NewAMQP(cfg.AMQP.URL, cfg.AMQP.JobQueue, cfg.AMQP.Prefetch, logger)
		if err == nil {
			return q, true
		}
		logger.Warn("rabbitmq job queue unavailable, using in-process queue", zap.Error(err))
	}
	return queue.NewMemory(cfg.Worker.QueueCapacity), false
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Request-ID", "X-Device-ID")
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
