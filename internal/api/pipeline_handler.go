package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexfield/regscreen/internal/services"
	"github.com/lexfield/regscreen/pkg/config"
)

// PipelineController is the slice of the screening pipeline the handler
// drives. Satisfied by *services.ScreeningPipeline.
type PipelineController interface {
	Start(cfg services.PipelineConfig) error
	Stop() error
	RunOnce(cfg services.PipelineConfig) (*services.PipelineStats, error)
	GetStats(staleAfter time.Duration) (services.PipelineStatus, error)
}

// PipelineHandler handles screening pipeline management operations
type PipelineHandler struct {
	pipeline PipelineController
	cfg      *config.Config
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(pipeline PipelineController, cfg *config.Config) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		cfg:      cfg,
	}
}

// GetPipelineStatus returns the current status of the screening pipeline,
// including corpus and work-queue counts
func (h *PipelineHandler) GetPipelineStatus(c *gin.Context) {
	status, err := h.pipeline.GetStats(h.cfg.StaleAfter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get pipeline status: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pipeline_status": status,
		"timestamp":       time.Now(),
	})
}

// StartPipeline starts the automated screening loop
func (h *PipelineHandler) StartPipeline(c *gin.Context) {
	// Parse configuration from request body or fall back to app config
	pipelineConfig := services.PipelineConfigFromApp(h.cfg)
	if err := c.ShouldBindJSON(&pipelineConfig); err != nil {
		pipelineConfig = services.PipelineConfigFromApp(h.cfg)
	}

	if err := h.pipeline.Start(pipelineConfig); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to start pipeline: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Screening pipeline started successfully",
		"config":    pipelineConfig,
		"timestamp": time.Now(),
	})
}

// StopPipeline stops the automated screening loop
func (h *PipelineHandler) StopPipeline(c *gin.Context) {
	if err := h.pipeline.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to stop pipeline: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Screening pipeline stopped successfully",
		"timestamp": time.Now(),
	})
}

// RunPipelineOnce executes a single screening cycle manually
func (h *PipelineHandler) RunPipelineOnce(c *gin.Context) {
	pipelineConfig := services.PipelineConfigFromApp(h.cfg)

	if batchSize := c.Query("batch_size"); batchSize != "" {
		if parsed, err := strconv.Atoi(batchSize); err == nil && parsed > 0 {
			pipelineConfig.BatchSize = parsed
		}
	}

	if maxConcurrent := c.Query("max_concurrent"); maxConcurrent != "" {
		if parsed, err := strconv.Atoi(maxConcurrent); err == nil && parsed > 0 {
			pipelineConfig.MaxConcurrent = parsed
		}
	}

	if staleAfter := c.Query("stale_after"); staleAfter != "" {
		if parsed, err := time.ParseDuration(staleAfter); err == nil && parsed > 0 {
			pipelineConfig.StaleAfter = parsed
		}
	}

	stats, err := h.pipeline.RunOnce(pipelineConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run screening cycle: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Screening cycle completed successfully",
		"config":    pipelineConfig,
		"stats":     stats,
		"timestamp": time.Now(),
	})
}

// GetPipelineConfig returns the pipeline configuration currently in effect
func (h *PipelineHandler) GetPipelineConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": services.PipelineConfigFromApp(h.cfg),
		"description": map[string]string{
			"batch_size":     "Number of organizations to rescreen in each cycle",
			"interval":       "How often the loop runs a screening cycle",
			"max_concurrent": "Maximum number of concurrent screening operations",
			"stale_after":    "Rescreen organizations whose results are older than this",
		},
		"timestamp": time.Now(),
	})
}
