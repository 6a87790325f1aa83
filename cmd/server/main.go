package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerylCAtieno/iac-workitem-api/internal/config"
	"github.com/BerylCAtieno/iac-workitem-api/internal/db"
	"github.com/BerylCAtieno/iac-workitem-api/internal/repository"
	"github.com/BerylCAtieno/iac-workitem-api/internal/router"
	"github.com/BerylCAtieno/iac-workitem-api/internal/services"
	"github.com/BerylCAtieno/iac-workitem-api/internal/storage"
	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	repo, store, closeBackends, err := openBackends(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize work item storage", "error", err)
	}
	defer closeBackends()

	svc := services.NewService(repo, store, cfg, logger)

	// Setup HTTP router
	handler := router.NewRouter(svc, cfg, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

// openBackends builds the metadata and object stores. With storage disabled
// nothing is constructed or contacted and both stores are nil; the service
// rejects every call before reaching them.
func openBackends(ctx context.Context, cfg *config.Config, logger *utils.Logger) (repository.Repository, storage.Storage, func(), error) {
	noop := func() {}

	if !cfg.StorageEnabled {
		logger.Warn("Work item storage is disabled; work item requests will be rejected")
		return nil, nil, noop, nil
	}

	// Metadata store
	var repo repository.Repository
	closeFn := noop
	switch cfg.MetadataStore {
	case config.MetadataStoreDynamoDB:
		client, err := repository.NewDynamoClient(ctx, cfg)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("configure DynamoDB client: %w", err)
		}
		repo = repository.NewDynamoRepository(client, cfg.DynamoDBTable)
		logger.Info("Using DynamoDB metadata store", "table", cfg.DynamoDBTable, "region", cfg.AWSRegion)

	default:
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, noop, fmt.Errorf("run migrations: %w", err)
		}
		database, err := db.NewSQLiteDB(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connect to database: %w", err)
		}
		closeFn = func() { database.Close() }
		repo = repository.NewSQLiteRepository(database)
		logger.Info("Using SQLite metadata store", "path", cfg.DatabaseURL)
	}

	// Object store
	var store storage.Storage
	switch cfg.ObjectStore {
	case config.ObjectStoreMemory:
		store = storage.NewMemoryStorage()
		logger.Warn("Using in-memory object store; content is lost on restart")
	default:
		s3, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			closeFn()
			return nil, nil, noop, fmt.Errorf("initialize object storage: %w", err)
		}
		store = s3
		logger.Info("Using S3 object store", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3BucketName)
	}

	return repo, store, closeFn, nil
}
