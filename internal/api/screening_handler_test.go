package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/matching"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/services"
)

// Mock screening service for testing
type mockScreeningService struct {
	knownID     uuid.UUID
	results     []models.MatchResult
	lastNow     time.Time
	shouldError bool
	corpusDown  bool
}

func (m *mockScreeningService) ScreenProfile(profile *models.OrganizationProfile, now time.Time) ([]models.MatchResult, error) {
	m.lastNow = now
	if m.corpusDown {
		return nil, errors.CorpusUnavailable("corpus snapshot unavailable", nil)
	}
	if m.shouldError {
		return nil, errors.ServiceError("mock error", nil)
	}
	if profile == nil || !profile.Screenable() {
		return nil, errors.InvalidProfile("profile has no sector and no jurisdiction", nil)
	}
	return m.results, nil
}

func (m *mockScreeningService) ScreenOrganization(id uuid.UUID, now time.Time) ([]models.MatchResult, error) {
	m.lastNow = now
	if m.corpusDown {
		return nil, errors.CorpusUnavailable("corpus snapshot unavailable", nil)
	}
	if m.shouldError {
		return nil, errors.ServiceError("mock error", nil)
	}
	if id != m.knownID {
		return nil, errors.NotFound("organization not found", nil)
	}
	return m.results, nil
}

func (m *mockScreeningService) GetResults(id uuid.UUID) ([]models.MatchResult, error) {
	if m.shouldError {
		return nil, errors.ServiceError("mock error", nil)
	}
	if id != m.knownID {
		return nil, errors.NotFound("organization not found", nil)
	}
	return m.results, nil
}

func (m *mockScreeningService) Snapshot() (*matching.CorpusSnapshot, error) {
	if m.corpusDown {
		return nil, errors.CorpusUnavailable("corpus snapshot unavailable", nil)
	}
	return matching.NewCorpusSnapshot("2-1700000000000000000", time.Now().UTC(), nil), nil
}

// Mock export service for testing
type mockExportService struct {
	knownID     uuid.UUID
	lastFormat  services.ExportFormat
	shouldError bool
}

func (m *mockExportService) Export(id uuid.UUID, format services.ExportFormat) ([]byte, error) {
	m.lastFormat = format
	if m.shouldError {
		return nil, errors.ServiceError("mock error", nil)
	}
	if id != m.knownID {
		return nil, errors.NotFound("organization not found", nil)
	}
	if format == services.FormatCSV {
		return []byte("regulation_id,title\nukpga/2018/12,Data Protection Act 2018\n"), nil
	}
	return []byte(`{"results":[]}`), nil
}

func sampleMatchResults() []models.MatchResult {
	return []models.MatchResult{
		{
			RegulationID: "ukpga/2018/12",
			Title:        "Data Protection Act 2018",
			Family:       "data_protection",
			Composite:    0.74,
			Breakdown: models.ScoreBreakdown{
				Sector:    models.DimensionScore{Score: 1.0, Detail: "sector family matched"},
				Role:      models.DimensionScore{Score: 0.7, Detail: "hierarchy implied"},
				Geography: models.DimensionScore{Score: 0.8, Detail: "containment"},
				Size:      models.DimensionScore{Score: 0.5, Detail: "no threshold"},
				Content:   models.DimensionScore{Score: 0.2, Detail: "keyword overlap"},
			},
			Confidence: models.ConfidenceBand{Lower: 0.64, Upper: 0.84},
			ScreenedAt: time.Now().UTC(),
		},
	}
}

func screenableProfileJSON(t *testing.T) []byte {
	t.Helper()
	employees := 75
	profile := models.OrganizationProfile{
		Name:                   "Stonebridge Construction Ltd",
		SectorCode:             "41202",
		OrgType:                models.OrgTypeLimitedCompany,
		HQJurisdiction:         models.JurisdictionEngland,
		OperatingJurisdictions: []models.Jurisdiction{models.JurisdictionEngland},
		EmployeeCount:          &employees,
		Roles:                  []string{"employer"},
	}
	body, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("failed to marshal profile: %v", err)
	}
	return body
}

func setupScreeningRouter(mockService *mockScreeningService, mockExport *mockExportService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewScreeningHandler(mockService, mockExport)

	router := gin.New()
	router.POST("/screening/run", handler.RunScreening)
	router.POST("/screening/organizations/:id", handler.ScreenOrganization)
	router.GET("/screening/organizations/:id/results", handler.GetResults)
	router.GET("/screening/organizations/:id/results/export", handler.ExportResults)
	return router
}

func TestScreeningHandler_RunScreening(t *testing.T) {
	mockService := &mockScreeningService{results: sampleMatchResults()}
	router := setupScreeningRouter(mockService, &mockExportService{})

	req, _ := http.NewRequest("POST", "/screening/run", bytes.NewBuffer(screenableProfileJSON(t)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if count, ok := response["count"].(float64); !ok || count != 1 {
		t.Errorf("Expected count 1, got %v", response["count"])
	}
	if _, exists := response["corpus_version"]; !exists {
		t.Error("Expected 'corpus_version' field in response")
	}
	if _, exists := response["results"]; !exists {
		t.Error("Expected 'results' field in response")
	}

	// Test error case
	mockService.shouldError = true
	req, _ = http.NewRequest("POST", "/screening/run", bytes.NewBuffer(screenableProfileJSON(t)))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 for error case, got %d", resp.Code)
	}
}

func TestScreeningHandler_RunScreening_InvalidJSON(t *testing.T) {
	router := setupScreeningRouter(&mockScreeningService{}, &mockExportService{})

	req, _ := http.NewRequest("POST", "/screening/run", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid JSON, got %d", resp.Code)
	}
}

func TestScreeningHandler_RunScreening_UnscreenableProfile(t *testing.T) {
	router := setupScreeningRouter(&mockScreeningService{}, &mockExportService{})

	// A profile with no sector and no jurisdiction cannot be screened
	body, _ := json.Marshal(models.OrganizationProfile{Name: "Empty Shell Ltd"})
	req, _ := http.NewRequest("POST", "/screening/run", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422 for unscreenable profile, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["code"] != errors.ErrCodeInvalidProfile {
		t.Errorf("Expected code %s, got %v", errors.ErrCodeInvalidProfile, response["code"])
	}
}

func TestScreeningHandler_RunScreening_CorpusUnavailable(t *testing.T) {
	mockService := &mockScreeningService{corpusDown: true}
	router := setupScreeningRouter(mockService, &mockExportService{})

	req, _ := http.NewRequest("POST", "/screening/run", bytes.NewBuffer(screenableProfileJSON(t)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when corpus unavailable, got %d", resp.Code)
	}
}

func TestScreeningHandler_RunScreening_AsOf(t *testing.T) {
	mockService := &mockScreeningService{results: sampleMatchResults()}
	router := setupScreeningRouter(mockService, &mockExportService{})

	asOf := "2026-03-01T00:00:00Z"
	req, _ := http.NewRequest("POST", "/screening/run?as_of="+asOf, bytes.NewBuffer(screenableProfileJSON(t)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	want, _ := time.Parse(time.RFC3339, asOf)
	if !mockService.lastNow.Equal(want) {
		t.Errorf("Expected screening clock %v, got %v", want, mockService.lastNow)
	}

	// Malformed timestamp is rejected before the service runs
	req, _ = http.NewRequest("POST", "/screening/run?as_of=yesterday", bytes.NewBuffer(screenableProfileJSON(t)))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed as_of, got %d", resp.Code)
	}
}

func TestScreeningHandler_ScreenOrganization(t *testing.T) {
	orgID := uuid.New()
	mockService := &mockScreeningService{knownID: orgID, results: sampleMatchResults()}
	router := setupScreeningRouter(mockService, &mockExportService{})

	req, _ := http.NewRequest("POST", "/screening/organizations/"+orgID.String(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["message"] != "Organization screened successfully" {
		t.Errorf("Expected success message, got %v", response["message"])
	}

	// Test invalid UUID
	req, _ = http.NewRequest("POST", "/screening/organizations/not-a-uuid", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid UUID, got %d", resp.Code)
	}

	// Test unknown organization
	req, _ = http.NewRequest("POST", "/screening/organizations/"+uuid.NewString(), nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown organization, got %d", resp.Code)
	}
}

func TestScreeningHandler_GetResults(t *testing.T) {
	orgID := uuid.New()
	mockService := &mockScreeningService{knownID: orgID, results: sampleMatchResults()}
	router := setupScreeningRouter(mockService, &mockExportService{})

	req, _ := http.NewRequest("GET", "/screening/organizations/"+orgID.String()+"/results", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if count, ok := response["count"].(float64); !ok || count != 1 {
		t.Errorf("Expected count 1, got %v", response["count"])
	}

	// Test error case
	mockService.shouldError = true
	req, _ = http.NewRequest("GET", "/screening/organizations/"+orgID.String()+"/results", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 for error case, got %d", resp.Code)
	}
}

func TestScreeningHandler_ExportResults(t *testing.T) {
	orgID := uuid.New()
	mockExport := &mockExportService{knownID: orgID}
	router := setupScreeningRouter(&mockScreeningService{knownID: orgID}, mockExport)

	// CSV export
	req, _ := http.NewRequest("GET", "/screening/organizations/"+orgID.String()+"/results/export?format=csv", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	if mockExport.lastFormat != services.FormatCSV {
		t.Errorf("Expected CSV format, got %s", mockExport.lastFormat)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv content type, got %s", ct)
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.Contains(cd, ".csv") {
		t.Errorf("Expected csv attachment, got %s", cd)
	}

	// Default format is JSON
	req, _ = http.NewRequest("GET", "/screening/organizations/"+orgID.String()+"/results/export", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	if mockExport.lastFormat != services.FormatJSON {
		t.Errorf("Expected JSON format, got %s", mockExport.lastFormat)
	}

	// Unsupported format
	req, _ = http.NewRequest("GET", "/screening/organizations/"+orgID.String()+"/results/export?format=xml", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unsupported format, got %d", resp.Code)
	}

	// Unknown organization
	req, _ = http.NewRequest("GET", "/screening/organizations/"+uuid.NewString()+"/results/export?format=csv", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown organization, got %d", resp.Code)
	}
}
