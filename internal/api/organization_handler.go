package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
	"github.com/lexfield/regscreen/internal/services"
)

// OrganizationHandler handles organization profile management
type OrganizationHandler struct {
	organizationService services.OrganizationService
}

// NewOrganizationHandler creates a new organization handler with service injection
func NewOrganizationHandler(organizationService services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{
		organizationService: organizationService,
	}
}

// CreateOrganization stores a new organization profile
func (h *OrganizationHandler) CreateOrganization(c *gin.Context) {
	var profile models.OrganizationProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile format: " + err.Error()})
		return
	}

	if err := h.organizationService.Create(&profile); err != nil {
		respondError(c, err, "create organization")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "Organization created successfully",
		"organization": profile,
		"timestamp":    time.Now(),
	})
}

// GetOrganization returns a single organization profile
func (h *OrganizationHandler) GetOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	profile, err := h.organizationService.GetByID(id)
	if err != nil {
		respondError(c, err, "get organization")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organization": profile,
		"timestamp":    time.Now(),
	})
}

// GetOrganizations returns organization profiles matching the query filters
func (h *OrganizationHandler) GetOrganizations(c *gin.Context) {
	filters := repository.OrganizationFilters{
		SectorCode: c.Query("sector_code"),
		OrgType:    c.Query("org_type"),
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

	profiles, err := h.organizationService.GetAll(filters)
	if err != nil {
		respondError(c, err, "list organizations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organizations": profiles,
		"count":         len(profiles),
		"timestamp":     time.Now(),
	})
}

// UpdateOrganization replaces a stored organization profile
func (h *OrganizationHandler) UpdateOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	var profile models.OrganizationProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile format: " + err.Error()})
		return
	}

	// The path owns the identity; a mismatched body id is rejected rather
	// than silently renaming the record.
	if profile.ID != uuid.Nil && profile.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Profile ID does not match URL"})
		return
	}
	profile.ID = id

	if err := h.organizationService.Update(&profile); err != nil {
		respondError(c, err, "update organization")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Organization updated successfully",
		"organization": profile,
		"timestamp":    time.Now(),
	})
}

// PatchAttributes merges new risk-indicator attributes into the profile
// without touching its other fields
func (h *OrganizationHandler) PatchAttributes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	var attrs models.AttributeMap
	if err := c.ShouldBindJSON(&attrs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid attributes format: " + err.Error()})
		return
	}

	if err := h.organizationService.MergeAttributes(id, attrs); err != nil {
		respondError(c, err, "merge attributes")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Attributes merged successfully",
		"organization_id": id,
		"timestamp":       time.Now(),
	})
}

// DeleteOrganization removes an organization profile and its persisted
// screening results
func (h *OrganizationHandler) DeleteOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID format"})
		return
	}

	if err := h.organizationService.Delete(id); err != nil {
		respondError(c, err, "delete organization")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Organization deleted successfully",
		"timestamp": time.Now(),
	})
}
