package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/services"
)

// ScreeningHandler handles applicability screening operations
type ScreeningHandler struct {
	screeningService services.ScreeningService
	exportService    services.ResultExportService
}

// NewScreeningHandler creates a new screening handler with service injection
func NewScreeningHandler(screeningService services.ScreeningService, exportService services.ResultExportService) *ScreeningHandler {
	return &ScreeningHandler{
		screeningService: screeningService,
		exportService:    exportService,
	}
}

// RunScreening screens an ad-hoc organization profile against the current
// corpus snapshot. Nothing is persisted; this is the dry-run surface for
// integrations that keep profiles elsewhere.
func (h *ScreeningHandler) RunScreening(c *gin.Context) {
	var profile models.OrganizationProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile format: " + err.Error()})
		return
	}

	// Screening is clock-sensitive (in-force windows); as_of lets callers
	// ask "what would apply on this date" without waiting for it.
	now := time.Now().UTC()
	if asOf := c.Query("as_of"); asOf != "" {
		parsed, err := time.Parse(time.RFC3339, asOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid as_of timestamp, expected RFC3339: " + err.Error()})
			return
		}
		now = parsed.UTC()
	}

	results, err := h.screeningService.ScreenProfile(&profile, now)
	if err != nil {
		respondError(c, err, "screen profile")
		return
	}

	response := gin.H{
		"results":     results,
		"count":       len(results),
		"screened_at": now,
		"timestamp":   time.Now(),
	}
	if snap, err := h.screeningService.Snapshot(); err == nil {
		response["corpus_version"] = snap.Version()
	}

	c.JSON(http.StatusOK, response)
}

// ScreenOrganization screens a stored organization and persists the
// resulting matches, replacing any previous run atomically
func (h *ScreeningHandler) ScreenOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	results, err := h.screeningService.ScreenOrganization(id, time.Now().UTC())
	if err != nil {
		respondError(c, err, "screen organization")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Organization screened successfully",
		"organization_id": id,
		"results":         results,
		"count":           len(results),
		"timestamp":       time.Now(),
	})
}

// GetResults returns the persisted results of the organization's last
// screening run
func (h *ScreeningHandler) GetResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	results, err := h.screeningService.GetResults(id)
	if err != nil {
		respondError(c, err, "get screening results")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organization_id": id,
		"results":         results,
		"count":           len(results),
		"timestamp":       time.Now(),
	})
}

// ExportResults streams the organization's persisted screening results as
// a CSV or JSON attachment
func (h *ScreeningHandler) ExportResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	format := services.FormatJSON
	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "csv":
		format = services.FormatCSV
	case "json":
		format = services.FormatJSON
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format. Supported formats: json, csv"})
		return
	}

	data, err := h.exportService.Export(id, format)
	if err != nil {
		respondError(c, err, "export screening results")
		return
	}

	filename := "screening_results_" + id.String() + "_" + time.Now().Format("2006-01-02_15-04-05")

	contentType := "application/json"
	if format == services.FormatCSV {
		contentType = "text/csv"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`.`+string(format)+`"`)

	c.Data(http.StatusOK, contentType, data)
}
