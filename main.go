package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/qb-categorizer-be/internal/ai"
	"github.com/isdelr/qb-categorizer-be/internal/api"
	"github.com/isdelr/qb-categorizer-be/internal/auth"
	"github.com/isdelr/qb-categorizer-be/internal/cache"
	"github.com/isdelr/qb-categorizer-be/internal/config"
	"github.com/isdelr/qb-categorizer-be/internal/database"
	"github.com/isdelr/qb-categorizer-be/internal/logger"
	"github.com/isdelr/qb-categorizer-be/internal/monitoring"
	"github.com/isdelr/qb-categorizer-be/internal/quickbooks"
	"github.com/isdelr/qb-categorizer-be/internal/services"
	"github.com/isdelr/qb-categorizer-be/internal/vault"
	"github.com/isdelr/qb-categorizer-be/internal/vector"
	"github.com/isdelr/qb-categorizer-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	tokenVault, err := vault.New(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token encryption")
	}

	// OAuth state store: Redis when configured, otherwise in-process
	var states cache.Store
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		states, err = cache.NewRedisStore(ctx, cfg.RedisURL, "qbcat:")
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
	} else {
		log.Warn().Msg("REDIS_URL not set, keeping OAuth state in memory")
		states = cache.NewMemoryStore()
	}
	defer states.Close()

	// External APIs
	qbClient := quickbooks.New(quickbooks.Options{
		ClientID:     cfg.QuickBooks.ClientID,
		ClientSecret: cfg.QuickBooks.ClientSecret,
		RedirectURI:  cfg.QuickBooks.RedirectURI,
		Environment:  cfg.QuickBooks.Environment,
	})
	llm := ai.New(ai.Options{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.OpenAI.Model,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
	})
	index, err := vector.NewIndex(vector.Options{
		APIKey:    cfg.Pinecone.APIKey,
		Host:      cfg.Pinecone.IndexHost,
		Namespace: cfg.Pinecone.Namespace,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Pinecone index")
	}
	defer index.Close()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	thresholds := cfg.AI
	userService := services.NewUserService(db, index)
	eventService := services.NewEventService(db)
	clientService := services.NewClientService(db, qbClient, tokenVault, states, index, eventService, cfg.QuickBooks.Environment)
	learningService := services.NewLearningService(db, llm, index, thresholds.SimilarityThreshold)
	transactionService := services.NewTransactionService(db, qbClient, clientService, learningService, eventService, hub,
		thresholds.HighConfidenceThreshold, thresholds.MediumConfidenceThreshold)
	categorizationService := services.NewCategorizationService(db, llm, clientService, learningService, eventService, hub,
		thresholds.HighConfidenceThreshold, thresholds.MediumConfidenceThreshold, cfg.CategorizeBatchSize)
	syncService := services.NewQuickBooksSyncService(db, qbClient, clientService, eventService, hub,
		thresholds.HighConfidenceThreshold, thresholds.MediumConfidenceThreshold)
	dashboardService := services.NewDashboardService(db)

	verifier, err := auth.NewWebhookVerifier(cfg.AuthWebhookSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize webhook verifier")
	}

	// Set up and run the background scheduler
	scheduler, err := monitoring.NewScheduler(cfg.SyncSchedule, cfg.SyncLookbackDays, clientService, transactionService, categorizationService, learningService)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}
	scheduler.Start()

	// Set up router
	router := api.NewRouter(api.Dependencies{
		Hub:                   hub,
		JWTSecret:             []byte(cfg.JWTSecret),
		WebhookVerifier:       verifier,
		CORSOrigins:           cfg.CORSOrigins,
		AppURL:                cfg.AppURL,
		LookbackDays:          cfg.SyncLookbackDays,
		UserService:           userService,
		EventService:          eventService,
		ClientService:         clientService,
		TransactionService:    transactionService,
		CategorizationService: categorizationService,
		QuickBooksSyncService: syncService,
		DashboardService:      dashboardService,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop(ctx)

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("Server exiting")
}
