package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/duetrack/billscan/internal/ai"
	"github.com/duetrack/billscan/internal/config"
	"github.com/duetrack/billscan/internal/extract"
	"github.com/duetrack/billscan/internal/pkg/logger"
	"github.com/duetrack/billscan/internal/repository/postgres"
	"github.com/duetrack/billscan/internal/service/extraction"
	"github.com/duetrack/billscan/internal/service/reminder"
	"github.com/duetrack/billscan/internal/worker"
)

func main() {
	log.Println("Starting billscan worker...")

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

	var redisClient *redis.Client
	var limiter *worker.ScanRateLimiter
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis unavailable, continuing without it: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			limiter = worker.NewScanRateLimiter(redisClient, cfg.Extraction.ScanRatePerMinute)
			log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
		}
		pingCancel()
	}

	var fieldExtractor extraction.FieldExtractor
	if cfg.AI.Enabled {
		extractor, err := ai.New(cfg.AI.ModelID, ai.Config{
			Workers:     cfg.AI.Workers,
			ItemTimeout: cfg.AI.Timeout(),
			MaxTokens:   cfg.AI.MaxTokens,
		})
		if err != nil {
			log.Printf("Warning: Bedrock client init failed, scanning heuristic-only: %v", err)
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
	reminderSvc := reminder.NewService(store, reminder.Config{
		LeadTimesDays: cfg.Reminders.LeadTimesDays,
	})

	scanWorker := worker.NewScanWorker(db, extractionSvc, limiter)
	if err := scanWorker.Start(); err != nil {
		log.Fatalf("Failed to start scan worker: %v", err)
	}
	log.Println("Scan worker started")

	reminderWorker := worker.NewReminderWorker(db, reminderSvc)
	if redisClient != nil {
		reminderWorker.SetRedisClient(redisClient)
	}
	reminderWorker.SetInterval(cfg.Reminders.RunInterval())
	if err := reminderWorker.Start(); err != nil {
		log.Fatalf("Failed to start reminder worker: %v", err)
	}
	log.Println("Reminder worker started")

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	scanWorker.Stop()
	reminderWorker.Stop()
	log.Println("Worker stopped")
}
