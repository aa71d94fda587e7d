package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
	"github.com/lexfield/regscreen/internal/services"
)

// RegulationHandler handles corpus record management
type RegulationHandler struct {
	regulationService services.RegulationService
}

// NewRegulationHandler creates a new regulation handler with service injection
func NewRegulationHandler(regulationService services.RegulationService) *RegulationHandler {
	return &RegulationHandler{
		regulationService: regulationService,
	}
}

// GetRegulations returns corpus records matching the query filters
func (h *RegulationHandler) GetRegulations(c *gin.Context) {
	filters := repository.RegulationFilters{
		Family:       c.Query("family"),
		LiveStatus:   c.Query("status"),
		Jurisdiction: c.Query("jurisdiction"),
		TitleSearch:  c.Query("q"),
	}

	if limit := c.Query("limit"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil && parsed > 0 {
			filters.Limit = parsed
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if parsed, err := strconv.Atoi(offset); err == nil && parsed > 0 {
			filters.Offset = parsed
		}
	}

	records, err := h.regulationService.GetAll(filters)
	if err != nil {
		respondError(c, err, "list regulations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"regulations": records,
		"count":       len(records),
		"timestamp":   time.Now(),
	})
}

// GetRegulation returns a single corpus record. Register identifiers are
// paths ("ukpga/2018/12"), so the route takes the three components
// separately.
func (h *RegulationHandler) GetRegulation(c *gin.Context) {
	id := recordID(c)

	record, err := h.regulationService.GetByID(id)
	if err != nil {
		respondError(c, err, "get regulation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"regulation": record,
		"timestamp":  time.Now(),
	})
}

// UpsertRegulation creates or replaces a corpus record
func (h *RegulationHandler) UpsertRegulation(c *gin.Context) {
	var record models.RegulationRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid regulation format: " + err.Error()})
		return
	}

	if err := h.regulationService.Upsert(&record); err != nil {
		respondError(c, err, "save regulation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Regulation record saved successfully",
		"regulation": record,
		"timestamp":  time.Now(),
	})
}

// DeleteRegulation removes a corpus record
func (h *RegulationHandler) DeleteRegulation(c *gin.Context) {
	id := recordID(c)

	if err := h.regulationService.Delete(id); err != nil {
		respondError(c, err, "delete regulation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Regulation record deleted successfully",
		"timestamp": time.Now(),
	})
}

// ImportRegulations handles CSV corpus import
func (h *RegulationHandler) ImportRegulations(c *gin.Context) {
	file, header, err := c.Request.FormFile("csv_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No CSV file provided"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be a CSV"})
		return
	}

	summary, err := h.regulationService.ImportCSV(file)
	if err != nil {
		respondError(c, err, "import regulations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Corpus import completed",
		"filename":  header.Filename,
		"summary":   summary,
		"timestamp": time.Now(),
	})
}

// recordID reassembles a register identifier from its route components
func recordID(c *gin.Context) string {
	return c.Param("type") + "/" + c.Param("year") + "/" + c.Param("number")
}
