package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"canopy-backend/internal/agent"
	"canopy-backend/internal/api"
	"canopy-backend/internal/chat"
	"canopy-backend/internal/config"
	"canopy-backend/internal/crypto"
	"canopy-backend/internal/handlers"
	"canopy-backend/internal/models"
	"canopy-backend/internal/notify"
	"canopy-backend/internal/playbook"
	"canopy-backend/internal/services"
	"canopy-backend/internal/store/postgres"
)

func main() {
	log.Println("Starting Canopy Backend...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Initialize Database Connection Pool
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: Unable to create database connection pool: %v\n", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(dbCtx); err != nil {
		log.Fatalf("FATAL: Unable to ping database: %v\n", err)
	}
	log.Println("Database connection pool established and pinged successfully.")

	// 3. Initialize Dependencies (Store, Services, Handlers)
	pgStore := postgres.NewPostgresStore(dbpool)
	log.Println("Postgres store initialized.")

	// --- Create AEAD Cipher for Channel Token Encryption ---
	aead, err := crypto.NewAESGCM(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("FATAL: Failed to create AES-GCM cipher: %v", err)
	}
	log.Println("AES-GCM cipher initialized.")

	// --- Initialize Notifier Registry ---
	notifyRegistry := notify.NewRegistry()
	notifyRegistry.Register(models.ChannelKindSlack, notify.NewSlackNotifier())
	log.Println("Notifier registry initialized and populated.")

	// --- Initialize Agent Client ---
	agentClient := agent.NewClient(cfg.AgentBaseURL)
	log.Printf("Agent client initialized for %s.", cfg.AgentBaseURL)

	pollPolicy := chat.PollPolicy{
		InitialInterval:      cfg.PollInterval,
		MaxInterval:          cfg.PollMaxInterval,
		BackoffFactor:        1.5,
		Deadline:             cfg.PollDeadline,
		MaxConsecutiveErrors: 5,
	}

	// --- Initialize Services ---
	authService := services.NewAuthService(pgStore, cfg)
	log.Println("AuthService initialized.")
	channelService := services.NewChannelService(pgStore, aead, notifyRegistry)
	log.Println("ChannelService initialized.")
	sessionService := services.NewSessionService(pgStore, agentClient, channelService, cfg)
	log.Println("SessionService initialized.")

	runner := playbook.NewRunner(pgStore, agentClient, pollPolicy)
	runner.Notify = channelService.SendToOrg
	playbookService := services.NewPlaybookService(pgStore, runner)
	log.Println("PlaybookService initialized.")

	// --- Start Playbook Scheduler ---
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	scheduler := playbook.NewScheduler(pgStore, runner)
	go scheduler.Start(schedCtx)
	log.Println("Playbook scheduler started.")

	// --- Initialize Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	log.Println("AuthHandler initialized.")
	sessionHandler := handlers.NewSessionHandlers(sessionService)
	log.Println("SessionHandler initialized.")
	playbookHandler := handlers.NewPlaybookHandlers(playbookService)
	log.Println("PlaybookHandler initialized.")
	channelHandler := handlers.NewChannelHandlers(channelService)
	log.Println("ChannelHandler initialized.")

	// 4. Setup Router & Inject Dependencies
	routerDeps := api.RouterDependencies{
		AuthHandler:     authHandler,
		SessionHandler:  sessionHandler,
		PlaybookHandler: playbookHandler,
		ChannelHandler:  channelHandler,
		Config:          cfg,
	}
	router := api.NewRouter(routerDeps)
	log.Println("HTTP router configured.")

	// 5. Configure and Start HTTP Server
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// Production hardening: Set timeouts to avoid Slowloris attacks
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to listen for OS signals for graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	// Run server in a goroutine so it doesn't block
	go func() {
		log.Printf("Server starting and listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Could not listen on %s: %v\n", cfg.HTTPPort, err)
		}
		log.Println("Server listener routine stopped.")
	}()

	// Wait for interrupt signal
	<-stopChan
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	// Stop dispatching scheduled playbooks before draining HTTP traffic.
	schedCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: Server graceful shutdown failed: %v", err)
		log.Fatal("Forcing shutdown due to error.")
	}

	// Flush any debounced session snapshots before exiting.
	sessionService.FlushAll()

	log.Println("Server shutdown complete.")
}
