package services

import (
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/logger"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
)

// ExportFormat specifies the format for exporting screening results
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// resultExportServiceImpl implements ResultExportService
type resultExportServiceImpl struct {
	repos  *repository.Repositories
	logger logger.Logger
}

// newResultExportService creates a new result export service implementation
func newResultExportService(repos *repository.Repositories) *resultExportServiceImpl {
	return &resultExportServiceImpl{
		repos:  repos,
		logger: logger.NewComponentLogger("export"),
	}
}

// Export renders the organization's persisted screening results in the
// requested format
func (s *resultExportServiceImpl) Export(id uuid.UUID, format ExportFormat) ([]byte, error) {
	profile, err := s.repos.Organization.GetByID(id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("organization not found", err).WithOperation("ExportResults")
		}
		return nil, errors.DatabaseError("failed to load organization", err).WithOperation("ExportResults")
	}

	results, err := s.repos.Result.GetByOrganization(id)
	if err != nil {
		return nil, errors.DatabaseError("failed to load screening results", err).WithOperation("ExportResults")
	}

	switch format {
	case FormatJSON:
		return s.exportToJSON(profile, results)
	case FormatCSV:
		return s.exportToCSV(results)
	default:
		return nil, errors.InvalidInput("unsupported export format", nil).
			WithOperation("ExportResults").
			WithDetails(string(format))
	}
}

// exportToJSON exports results to indented JSON
func (s *resultExportServiceImpl) exportToJSON(profile *models.OrganizationProfile, results []models.MatchResult) ([]byte, error) {
	exportData := map[string]interface{}{
		"organization_id":   profile.ID,
		"organization_name": profile.Name,
		"results":           results,
		"count":             len(results),
		"exported_at":       time.Now().UTC(),
	}

	return json.MarshalIndent(exportData, "", "  ")
}

// exportToCSV exports results to CSV format
func (s *resultExportServiceImpl) exportToCSV(results []models.MatchResult) ([]byte, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)

	headers := []string{
		"regulation_id", "title", "family", "composite",
		"sector", "role", "geography", "size", "content",
		"confidence_lower", "confidence_upper", "requires_review",
		"screened_at", "explanation",
	}

	if err := writer.Write(headers); err != nil {
		return nil, err
	}

	for _, result := range results {
		row := []string{
			result.RegulationID,
			result.Title,
			result.Family,
			formatScore(result.Composite),
			formatScore(result.Breakdown.Sector.Score),
			formatScore(result.Breakdown.Role.Score),
			formatScore(result.Breakdown.Geography.Score),
			formatScore(result.Breakdown.Size.Score),
			formatScore(result.Breakdown.Content.Score),
			formatScore(result.Confidence.Lower),
			formatScore(result.Confidence.Upper),
			strconv.FormatBool(result.Confidence.RequiresReview),
			result.ScreenedAt.Format(time.RFC3339),
			explanation(result.Breakdown),
		}

		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return []byte(output.String()), nil
}

// explanation joins the per-dimension details into one readable column
func explanation(b models.ScoreBreakdown) string {
	details := []string{
		b.Sector.Detail,
		b.Role.Detail,
		b.Geography.Detail,
		b.Size.Detail,
		b.Content.Detail,
	}

	var parts []string
	for _, d := range details {
		if d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, "; ")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
