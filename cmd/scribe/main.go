// Scribe server — provides the HTTP API, manages queue workers, and drives
// runs through the plan/execute/compile pipeline.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/agentic-research/scribe/pkg/agent/compiler"
	"github.com/agentic-research/scribe/pkg/agent/executor"
	"github.com/agentic-research/scribe/pkg/agent/planner"
	"github.com/agentic-research/scribe/pkg/agent/prompt"
	"github.com/agentic-research/scribe/pkg/api"
	"github.com/agentic-research/scribe/pkg/chart"
	"github.com/agentic-research/scribe/pkg/config"
	"github.com/agentic-research/scribe/pkg/database"
	"github.com/agentic-research/scribe/pkg/events"
	"github.com/agentic-research/scribe/pkg/llm"
	"github.com/agentic-research/scribe/pkg/queue"
	"github.com/agentic-research/scribe/pkg/search"
	"github.com/agentic-research/scribe/pkg/services"
	"github.com/agentic-research/scribe/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("SCRIBE_CONFIG", "./deploy/config/scribe.yaml"),
		"Path to the scribe.yaml configuration file")
	flag.Parse()

	// Load .env file from the config directory
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("SCRIBE_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting scribe",
		"version", version.GitCommit,
		"http_port", httpPort,
		"pod_id", podID,
		"config", *configPath)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (applies embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Stores and the transactional activity publisher
	runService := services.NewRunService(dbClient.DB())
	activityService := services.NewActivityService(dbClient.DB())
	publisher := events.NewPublisher(dbClient.DB())
	slog.Info("Services initialized")

	// 4. One-time startup orphan cleanup
	if err := queue.CleanupStartupOrphans(ctx, runService, publisher, podID); err != nil {
		slog.Error("Failed to cleanup startup orphans", "error", err)
		// Non-fatal — continue
	}

	// 5. Streaming infrastructure: the hub fans NOTIFY frames out to SSE
	// subscribers; the listener holds a dedicated pgx connection.
	hub := events.NewHub(activityService, cfg.Delivery.CatchupLimit, cfg.Delivery.SubscriberBuffer)
	notifyListener := events.NewNotifyListener(dbConfig.DSN(), hub)
	if err := notifyListener.Start(ctx); err != nil {
		slog.Error("Failed to start NotifyListener", "error", err)
		os.Exit(1)
	}
	defer notifyListener.Stop(ctx)

	// Wire listener ↔ hub bidirectional link
	hub.SetListener(notifyListener)
	slog.Info("Streaming infrastructure initialized")

	// 6. Capability clients
	llmClient, err := llm.NewClient(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float64(cfg.LLM.Temperature),
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		slog.Error("Failed to initialize LLM client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}

	searchClient, err := search.NewClient(search.Config{
		BaseURL:    cfg.Search.BaseURL,
		APIKey:     cfg.Search.APIKey,
		Timeout:    cfg.Search.Timeout,
		MaxResults: cfg.Search.MaxResults,
	}, llmClient)
	if err != nil {
		slog.Error("Failed to initialize search client", "error", err)
		os.Exit(1)
	}

	chartClient, err := chart.NewClient(chart.Config{
		BaseURL: cfg.Chart.BaseURL,
		APIKey:  cfg.Chart.APIKey,
		Timeout: cfg.Chart.Timeout,
	})
	if err != nil {
		slog.Error("Failed to initialize chart client", "error", err)
		os.Exit(1)
	}
	slog.Info("Capability clients initialized",
		"llm_provider", cfg.LLM.Provider, "llm_model", cfg.LLM.Model)

	// 7. Pipeline: planner and executor/compiler, driven by the run manager
	prompts := prompt.NewPromptBuilder()
	runCompiler := compiler.New(llmClient, prompts)
	runPlanner := planner.New(llmClient, prompts, planner.Config{
		Deadline:     cfg.Limits.PlannerTimeout,
		MaxToolCalls: cfg.Limits.MaxToolCalls,
	})
	runExecutor := executor.New(executor.Deps{
		LLM:      llmClient,
		Search:   searchClient,
		Charts:   chartClient,
		Compiler: runCompiler,
		Prompts:  prompts,
		Recorder: publisher,
	})
	manager := queue.NewManager(runService, publisher, runPlanner, runExecutor)

	// 8. Start worker pool (before the HTTP server)
	workerPool := queue.NewWorkerPool(podID, runService, publisher, &cfg.Queue, manager)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 9. Create HTTP server
	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(runService, activityService, publisher, hub, workerPool, llmClient, dbClient, cfg)
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 10. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Scribe started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: drain active runs, then the HTTP server
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — incomplete runs will be orphan-recovered")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
