package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/duetrack/billscan/internal/ai"
	"github.com/duetrack/billscan/internal/api"
	"github.com/duetrack/billscan/internal/config"
	"github.com/duetrack/billscan/internal/extract"
	"github.com/duetrack/billscan/internal/pkg/logger"
	"github.com/duetrack/billscan/internal/repository/postgres"
	"github.com/duetrack/billscan/internal/service/extraction"
	"github.com/duetrack/billscan/internal/service/reminder"
	"github.com/duetrack/billscan/internal/service/review"
	"github.com/duetrack/billscan/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting billscan server...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL) is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancel()
	log.Println("Connected to database")

	store := postgres.NewStore(db)

	// Redis is optional. Without it the scan endpoint runs unthrottled.
	var limiter *worker.ScanRateLimiter
	if cfg.Redis.Enabled {
		limiter, err = worker.NewScanRateLimiterFromAddr(
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Extraction.ScanRatePerMinute)
		if err != nil {
			log.Printf("Warning: Redis unavailable, scan rate limiting disabled: %v", err)
			limiter = nil
		} else {
			defer limiter.Close()
		}
	}

	// The AI pass is optional too; heuristics alone still produce extractions.
	var fieldExtractor extraction.FieldExtractor
	if cfg.AI.Enabled {
		extractor, err := ai.New(cfg.AI.ModelID, ai.Config{
			Workers:     cfg.AI.Workers,
			ItemTimeout: cfg.AI.Timeout(),
			MaxTokens:   cfg.AI.MaxTokens,
		})
		if err != nil {
			log.Printf("Warning: Bedrock client init failed, running heuristic-only: %v", err)
		} else {
			fieldExtractor = extractor
			log.Printf("AI extractor ready (model: %s, workers: %d)", cfg.AI.ModelID, cfg.AI.Workers)
		}
	}

	extractionSvc := extraction.NewService(store, fieldExtractor, extraction.Config{
		Scan: extract.Config{
			PromoThreshold:   cfg.Extraction.PromoThreshold,
			KeywordThreshold: cfg.Extraction.KeywordThreshold,
		},
		AutoAcceptThreshold: cfg.Extraction.AutoAcceptThreshold,
		ScanBatchLimit:      cfg.Extraction.ScanBatchLimit,
	})
	reviewSvc := review.NewService(store)
	reminderSvc := reminder.NewService(store, reminder.Config{
		LeadTimesDays: cfg.Reminders.LeadTimesDays,
	})

	handlers := api.NewHandlers(extractionSvc, reviewSvc, reminderSvc, limiter)
	server := api.NewServer(cfg.Server, handlers)

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("%v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
