package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/services"
)

// SimilarityHandler handles anonymized peer-matching lookups
type SimilarityHandler struct {
	similarityService services.SimilarityService
}

// NewSimilarityHandler creates a new similarity handler with service injection
func NewSimilarityHandler(similarityService services.SimilarityService) *SimilarityHandler {
	return &SimilarityHandler{
		similarityService: similarityService,
	}
}

// GetSimilarOrganizations returns up to three anonymized profiles of
// organizations similar to the given one, with the category distribution
// of their applicable regulations. Raw identities never leave the service.
func (h *SimilarityHandler) GetSimilarOrganizations(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	matches, err := h.similarityService.FindSimilar(id)
	if err != nil {
		respondError(c, err, "find similar organizations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organization_id": id,
		"matches":         matches,
		"count":           len(matches),
		"timestamp":       time.Now(),
	})
}
