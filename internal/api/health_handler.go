package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexfield/regscreen/internal/database"
	"github.com/lexfield/regscreen/internal/ingest"
	"github.com/lexfield/regscreen/internal/services"
	"github.com/lexfield/regscreen/pkg/config"
)

// DatabaseHealth is the slice of the database wrapper the health
// endpoints use
type DatabaseHealth interface {
	HealthCheck() error
	GetStats() database.Stats
}

// FeedHealthChecker is the slice of the ingest service the health
// endpoints use
type FeedHealthChecker interface {
	Health(ctx context.Context) error
	FeedHealth() ingest.FeedHealth
	ResetFeedHealth()
}

// PipelineStatusProvider is the slice of the screening pipeline the
// health endpoints use
type PipelineStatusProvider interface {
	GetStats(staleAfter time.Duration) (services.PipelineStatus, error)
}

// HealthHandler handles liveness and dependency health reporting
type HealthHandler struct {
	db          DatabaseHealth
	feed        FeedHealthChecker
	pipeline    PipelineStatusProvider
	regulations services.RegulationService
	cfg         *config.Config
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db DatabaseHealth, feed FeedHealthChecker, pipeline PipelineStatusProvider, regulations services.RegulationService, cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		db:          db,
		feed:        feed,
		pipeline:    pipeline,
		regulations: regulations,
		cfg:         cfg,
	}
}

// Health is the basic liveness probe: process up, database reachable
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.db.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

// DetailedHealth reports the state of every dependency: database pool,
// corpus, screening pipeline and the register feed. The database is the
// only hard dependency; a sick feed degrades the report but not the
// status code.
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	dbErr := h.db.HealthCheck()

	dbReport := gin.H{
		"healthy": dbErr == nil,
		"pool":    h.db.GetStats(),
	}
	if dbErr != nil {
		dbReport["error"] = dbErr.Error()
	}

	response := gin.H{
		"healthy":   dbErr == nil,
		"database":  dbReport,
		"timestamp": time.Now(),
	}

	if info, err := h.regulations.CorpusInfo(); err == nil {
		response["corpus"] = info
	} else {
		response["corpus"] = gin.H{"error": err.Error()}
	}

	if status, err := h.pipeline.GetStats(h.cfg.StaleAfter); err == nil {
		response["pipeline"] = status
	} else {
		response["pipeline"] = gin.H{"error": err.Error()}
	}

	feedErr := h.feed.Health(ctx)
	feedReport := gin.H{
		"healthy": feedErr == nil,
		"monitor": h.feed.FeedHealth(),
	}
	if feedErr != nil {
		feedReport["error"] = feedErr.Error()
	}
	response["feed"] = feedReport

	if dbErr != nil {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetFeedHealth returns the register feed monitor state without touching
// the network
func (h *HealthHandler) GetFeedHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"feed_health": h.feed.FeedHealth(),
		"timestamp":   time.Now(),
	})
}

// ResetFeedHealth clears the register feed monitor
func (h *HealthHandler) ResetFeedHealth(c *gin.Context) {
	h.feed.ResetFeedHealth()

	c.JSON(http.StatusOK, gin.H{
		"message":   "Feed health monitor reset successfully",
		"timestamp": time.Now(),
	})
}
