package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"parley/config"
	"parley/cron"
	"parley/database"
	archiveRepo "parley/database/repository/archive"
	"parley/handlers"
	"parley/middleware"
	"parley/routes"
	"parley/services/calendar"
	"parley/services/intelligence"
	"parley/services/negotiation"
	"parley/services/notification"
	"parley/services/router"
	"parley/services/tasks"
	"parley/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer logger.Sync() //nolint:errcheck

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var redisClients []*redis.Client

	// Calendar.
	cal, err := calendar.NewCalendar(cfg, logger.Named("calendar"))
	if err != nil {
		logger.Fatal("main: failed to initialize calendar", zap.Error(err))
	}

	// Transport. Mail needs Redis to remember which messages were routed.
	var dedup notification.Deduper = notification.NewMemoryDeduper()
	if strings.EqualFold(cfg.TransportBackend, "mail") {
		client := utils.GetDedupClient()
		redisClients = append(redisClients, client)
		dedup = notification.NewRedisDeduper(client)
	}
	transport, err := notification.NewTransport(cfg, dedup, logger.Named("transport"))
	if err != nil {
		logger.Fatal("main: failed to initialize transport", zap.Error(err))
	}

	// Extractor, cached when a model backend and a cache TTL are configured.
	var cache *redis.Client
	if backend := strings.ToLower(cfg.ExtractorBackend); backend != "" && backend != "local" && cfg.ExtractionCacheTTL() > 0 {
		cache = utils.GetCacheClient()
		redisClients = append(redisClients, cache)
	}
	extractor, err := intelligence.NewExtractor(ctx, cfg, cache, logger)
	if err != nil {
		logger.Fatal("main: failed to initialize extractor", zap.Error(err))
	}

	engine := negotiation.NewEngine(
		negotiation.NewRegistry(),
		cal,
		transport,
		extractor,
		negotiation.PolicyFromConfig(cfg),
		logger.Named("engine"),
	)

	// Reminders.
	var reminderServer *asynq.Server
	if cfg.RemindersEnabled {
		scheduler := tasks.NewAsynqScheduler()
		defer scheduler.Close()
		engine.Reminders = scheduler
		reminderServer = cron.InitReminderWorker(ctx, transport, logger.Named("reminders"))
	}

	// Archive.
	if cfg.ArchiveEnabled {
		if err := database.InitDB(); err != nil {
			logger.Fatal("main: failed to initialize archive database", zap.Error(err))
		}
		repo, err := archiveRepo.NewMongoArchiveRepo()
		if err != nil {
			logger.Fatal("main: failed to initialize archive repository", zap.Error(err))
		}
		engine.Archive = repo
		logger.Info("Archiving finished negotiations", zap.String("collection", archiveRepo.CollectionName))
	}

	utils.StartHealthMonitor(ctx, redisClients, database.MongoClient)

	// Reply poller.
	poller := router.NewPoller(transport, engine, cfg.PollInterval(), cfg.PollBatchSize, logger.Named("router"))
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	// HTTP operator API.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.ErrorHandler())
	r.Use(gin.Logger())
	r.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin, logger.Named("ratelimit")))

	injector, _ := transport.(notification.Injector)
	negotiationHandler := handlers.NewNegotiationHandler(engine, injector, logger.Named("api"))
	routes.RegisterRoutes(r, handlers.NewHandlerBundle(negotiationHandler, cfg.OperatorJWTSecret))

	if cfg.OperatorJWTSecret == "" {
		logger.Warn("OPERATOR_JWT_SECRET is empty; the operator API is unauthenticated")
	}

	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: r,
	}

	logger.Info("Starting server", zap.String("addr", srv.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("main: server failed to start", zap.Error(err))
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("main: server is shutting down...")

	poller.Stop()
	stop()
	<-pollerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}
	if reminderServer != nil {
		reminderServer.Shutdown()
	}
	if err := intelligence.Close(extractor); err != nil {
		logger.Warn("main: failed to close extractor", zap.Error(err))
	}
	if err := database.CloseDB(shutdownCtx); err != nil {
		logger.Warn("main: failed to close database", zap.Error(err))
	}

	summary := engine.Summary()
	for _, req := range summary.Requests {
		logger.Info("Negotiation",
			zap.String("requestID", req.ID),
			zap.String("subject", req.Subject),
			zap.String("status", string(req.Status)),
			zap.Int("retries", req.Retries))
	}
	logger.Info("main: server stopped gracefully",
		zap.Int("requests", len(summary.Requests)),
		zap.Int64("messagesSent", summary.MessagesSent))
}
