// Command mazerunner is the harness process: it polls the trigger-event
// queue, admits experiments, and drives each one through its turn loop
// until it finalizes.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mazerunner/harness/pkg/admission"
	"github.com/mazerunner/harness/pkg/cleanup"
	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/httpapi"
	"github.com/mazerunner/harness/pkg/prompt"
	"github.com/mazerunner/harness/pkg/scheduler"
	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/tools"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("starting mazerunner")
	log.Printf("config directory: %s", *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	storeClient, err := store.NewClient(ctx, store.Config{DSN: cfg.DatabaseDSN})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := storeClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database")

	dispatcher := tools.NewDispatcher(storeClient, cfg.VisionRange)
	prompts := prompt.NewStore(cfg.PromptDir)
	factory := scheduler.NewFactory(storeClient, dispatcher, prompts, cfg.CostRates, cfg.RateLimits)

	pool := admission.NewPool(storeClient, factory, cfg.Defaults, cfg.Admission)
	pool.Start(ctx)
	log.Printf("admission pool started: %d worker(s), max %d concurrent experiments",
		cfg.Admission.WorkerCount, cfg.Admission.MaxConcurrentExperiments)

	orphanScanner := cleanup.NewService(storeClient, cfg.Admission.OrphanDetectionInterval, cfg.Admission.OrphanThreshold)
	orphanScanner.Start(ctx)

	apiServer := httpapi.NewServer(storeClient, pool)
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("failed to bind http address %s: %v", cfg.HTTPAddr, err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddr)
		log.Printf("health check available at http://%s/health", cfg.HTTPAddr)
		serverErrCh <- apiServer.StartWithListener(ln)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}

	pool.Stop()
	orphanScanner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down http server: %v", err)
	}

	log.Println("mazerunner stopped")
}
