package api

import (
	"database/sql"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/lexfield/regscreen/internal/auth"
	"github.com/lexfield/regscreen/internal/database"
	"github.com/lexfield/regscreen/internal/ingest"
	"github.com/lexfield/regscreen/internal/repository"
	"github.com/lexfield/regscreen/internal/services"
	"github.com/lexfield/regscreen/pkg/config"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, db *sql.DB, cfg *config.Config) error {
	// Wrap sql.DB in our database wrapper
	dbWrapper := &database.DB{DB: db}

	// Create centralized services
	svcs, err := services.NewServices(db, cfg)
	if err != nil {
		return fmt.Errorf("failed to create services: %w", err)
	}

	// The register sync runs in its own binary; the server keeps a feed
	// client only for health reporting.
	feedService := ingest.NewService(cfg, repository.NewRepositories(db).Regulation, nil)

	// Create handlers with proper service injection
	screeningHandler := NewScreeningHandler(svcs.Screening, svcs.Export)
	similarityHandler := NewSimilarityHandler(svcs.Similarity)
	organizationHandler := NewOrganizationHandler(svcs.Organization)
	regulationHandler := NewRegulationHandler(svcs.Regulation)
	pipelineHandler := NewPipelineHandler(svcs.Pipeline, cfg)
	healthHandler := NewHealthHandler(dbWrapper, feedService, svcs.Pipeline, svcs.Regulation, cfg)

	// Public routes
	public := r.Group("/api/v1")
	{
		// Health monitoring endpoints
		public.GET("/health", healthHandler.Health)
		public.GET("/health/detailed", healthHandler.DetailedHealth)
		public.GET("/health/feed", healthHandler.GetFeedHealth)

		// Screening endpoints
		public.POST("/screening/run", screeningHandler.RunScreening)
		public.POST("/screening/organizations/:id", screeningHandler.ScreenOrganization)
		public.GET("/screening/organizations/:id/results", screeningHandler.GetResults)
		public.GET("/screening/organizations/:id/results/export", screeningHandler.ExportResults)

		// Similarity endpoints
		public.GET("/similarity/organizations/:id", similarityHandler.GetSimilarOrganizations)

		// Corpus read endpoints; register ids are paths (ukpga/2018/12)
		public.GET("/regulations", regulationHandler.GetRegulations)
		public.GET("/regulations/:type/:year/:number", regulationHandler.GetRegulation)
	}

	// Protected routes
	protected := r.Group("/api/v1")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))
	{
		// Corpus write endpoints
		protected.POST("/regulations", regulationHandler.UpsertRegulation)
		protected.POST("/regulations/import", regulationHandler.ImportRegulations)
		protected.DELETE("/regulations/:type/:year/:number", regulationHandler.DeleteRegulation)

		// Organization profile endpoints
		protected.GET("/organizations", organizationHandler.GetOrganizations)
		protected.POST("/organizations", organizationHandler.CreateOrganization)
		protected.GET("/organizations/:id", organizationHandler.GetOrganization)
		protected.PUT("/organizations/:id", organizationHandler.UpdateOrganization)
		protected.PATCH("/organizations/:id/attributes", organizationHandler.PatchAttributes)
		protected.DELETE("/organizations/:id", organizationHandler.DeleteOrganization)

		// Automated pipeline endpoints
		protected.GET("/pipeline/status", pipelineHandler.GetPipelineStatus)
		protected.GET("/pipeline/config", pipelineHandler.GetPipelineConfig)
		protected.POST("/pipeline/start", pipelineHandler.StartPipeline)
		protected.POST("/pipeline/stop", pipelineHandler.StopPipeline)
		protected.POST("/pipeline/run", pipelineHandler.RunPipelineOnce)

		// Feed monitor reset
		protected.POST("/health/feed/reset", healthHandler.ResetFeedHealth)
	}

	return nil
}
