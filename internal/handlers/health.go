package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/FacetBaths/stock-man-sub005/internal/events"
)

// HealthHandler reports liveness and dependency readiness.
type HealthHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	publisher *events.Publisher
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, publisher *events.Publisher) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, publisher: publisher}
}

// HealthCheck returns service health status (basic)
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "stock-man",
	})
}

// ReadinessCheck returns detailed readiness including database, Redis, and NATS
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health := gin.H{
		"status":  "ready",
		"service": "stock-man",
		"checks":  gin.H{},
	}

	checks := health["checks"].(gin.H)
	degraded := false

	// Postgres is required for readiness
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["database"] = gin.H{"status": "unhealthy", "error": err.Error()}
		degraded = true
	} else {
		checks["database"] = gin.H{"status": "healthy"}
	}

	// Redis and NATS are optional; the service degrades without them
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = gin.H{"status": "unhealthy", "error": err.Error()}
		} else {
			checks["redis"] = gin.H{"status": "healthy"}
		}
	} else {
		checks["redis"] = gin.H{"status": "disabled"}
	}

	if h.publisher != nil {
		if h.publisher.IsConnected() {
			checks["nats"] = gin.H{"status": "healthy"}
		} else {
			checks["nats"] = gin.H{"status": "unhealthy"}
		}
	} else {
		checks["nats"] = gin.H{"status": "disabled"}
	}

	status := http.StatusOK
	if degraded {
		health["status"] = "not ready"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}
