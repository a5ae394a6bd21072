package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/FacetBaths/stock-man-sub005/internal/config"
	"github.com/FacetBaths/stock-man-sub005/internal/events"
	"github.com/FacetBaths/stock-man-sub005/internal/handlers"
	"github.com/FacetBaths/stock-man-sub005/internal/middleware"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/repository"
	"github.com/FacetBaths/stock-man-sub005/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.SKU{},
		&models.Instance{},
		&models.Tag{},
		&models.TagSKUItem{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize NATS event publisher (optional - graceful degradation if NATS unavailable)
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("Warning: Failed to initialize NATS event publisher: %v", err)
			log.Println("Continuing without event publishing...")
			publisher = nil
		} else {
			log.Println("✓ Connected to NATS JetStream for event publishing")
			defer publisher.Close()
		}
	} else {
		log.Println("NATS_URL not configured, event publishing disabled")
	}

	// Initialize Redis (optional - snapshot cache and allocation locks)
	redisClient := config.InitRedis(cfg)
	var locker *redislock.Client
	if redisClient != nil {
		locker = redislock.New(redisClient)
		log.Println("✓ Redis connected, snapshot cache and allocation locks enabled")
	} else {
		log.Println("REDIS_ADDRESS not configured, cache and locks disabled")
	}

	// Initialize repository and services
	repo := repository.NewLedgerRepository(db)
	snapshotService := services.NewSnapshotService(repo, redisClient, logger)
	ledgerService := services.NewLedgerService(repo, snapshotService, publisher, locker, logger)
	catalogService := services.NewCatalogService(repo, snapshotService, publisher, logger)

	// Initialize handlers
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	inventoryHandler := handlers.NewInventoryHandler(snapshotService)
	exportHandler := handlers.NewExportHandler(snapshotService)
	healthHandler := handlers.NewHealthHandler(db, redisClient, publisher)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)

	api := router.Group("/api/v1")

	// Tag routes (allocation / fulfillment / cancellation)
	tags := api.Group("/tags")
	{
		tags.POST("/allocate", ledgerHandler.Allocate)
		tags.GET("", ledgerHandler.ListTags)
		tags.GET("/:id", ledgerHandler.GetTag)
		tags.POST("/:id/fulfill", ledgerHandler.Fulfill)
		tags.POST("/:id/cancel", ledgerHandler.Cancel)
	}

	// SKU catalog routes
	skus := api.Group("/skus")
	{
		skus.POST("", catalogHandler.CreateSKU)
		skus.GET("", catalogHandler.ListSKUs)
		skus.GET("/:id", catalogHandler.GetSKU)
		skus.PUT("/:id", catalogHandler.UpdateSKU)
		skus.DELETE("/:id", catalogHandler.ArchiveSKU)
		skus.POST("/:id/receive", catalogHandler.ReceiveStock)
	}

	// Aggregate inventory routes
	inventory := api.Group("/inventory")
	{
		inventory.GET("", inventoryHandler.ListSnapshots)
		inventory.GET("/export", exportHandler.ExportInventory)
		inventory.GET("/:sku_id", inventoryHandler.GetSnapshot)
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Stock ledger service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down stock-man service...")

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}

	log.Println("Stock ledger service stopped")
}
