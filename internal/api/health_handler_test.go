package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexfield/regscreen/internal/database"
	"github.com/lexfield/regscreen/internal/ingest"
	"github.com/lexfield/regscreen/internal/services"
)

// Mock dependencies for health endpoint testing
type mockDatabaseHealth struct {
	shouldError bool
}

func (m *mockDatabaseHealth) HealthCheck() error {
	if m.shouldError {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (m *mockDatabaseHealth) GetStats() database.Stats {
	return database.Stats{MaxOpenConnections: 25, OpenConnections: 3, InUse: 1, Idle: 2}
}

type mockFeedChecker struct {
	shouldError bool
	resetCalled bool
}

func (m *mockFeedChecker) Health(ctx context.Context) error {
	if m.shouldError {
		return fmt.Errorf("register unreachable")
	}
	return nil
}

func (m *mockFeedChecker) FeedHealth() ingest.FeedHealth {
	return ingest.FeedHealth{Healthy: !m.shouldError, TotalFetches: 12, SuccessRate: 1.0}
}

func (m *mockFeedChecker) ResetFeedHealth() {
	m.resetCalled = true
}

type mockPipelineStatus struct {
	shouldError bool
}

func (m *mockPipelineStatus) GetStats(staleAfter time.Duration) (services.PipelineStatus, error) {
	if m.shouldError {
		return services.PipelineStatus{}, fmt.Errorf("mock error")
	}
	return services.PipelineStatus{
		IsRunning:          false,
		TotalOrganizations: 42,
		TotalRegulations:   180,
		Timestamp:          time.Now().UTC(),
	}, nil
}

type healthMocks struct {
	db       *mockDatabaseHealth
	feed     *mockFeedChecker
	pipeline *mockPipelineStatus
	corpus   *mockRegulationService
}

func setupHealthRouter() (*gin.Engine, *healthMocks) {
	gin.SetMode(gin.TestMode)
	mocks := &healthMocks{
		db:       &mockDatabaseHealth{},
		feed:     &mockFeedChecker{},
		pipeline: &mockPipelineStatus{},
		corpus:   newMockRegulationService(),
	}
	handler := NewHealthHandler(mocks.db, mocks.feed, mocks.pipeline, mocks.corpus, pipelineTestConfig())

	router := gin.New()
	router.GET("/health", handler.Health)
	router.GET("/health/detailed", handler.DetailedHealth)
	router.GET("/health/feed", handler.GetFeedHealth)
	router.POST("/health/feed/reset", handler.ResetFeedHealth)
	return router, mocks
}

func TestHealthHandler_Health(t *testing.T) {
	router, mocks := setupHealthRouter()

	req, _ := http.NewRequest("GET", "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", response["status"])
	}

	mocks.db.shouldError = true
	req, _ = http.NewRequest("GET", "/health", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when database is down, got %d", resp.Code)
	}
}

func TestHealthHandler_DetailedHealth(t *testing.T) {
	router, _ := setupHealthRouter()

	req, _ := http.NewRequest("GET", "/health/detailed", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["healthy"] != true {
		t.Error("Expected overall healthy true")
	}
	for _, field := range []string{"database", "corpus", "pipeline", "feed"} {
		if _, exists := response[field]; !exists {
			t.Errorf("Expected '%s' field in response", field)
		}
	}

	db, ok := response["database"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected 'database' object in response")
	}
	if db["healthy"] != true {
		t.Error("Expected database healthy true")
	}
	if _, exists := db["pool"]; !exists {
		t.Error("Expected 'pool' stats in database report")
	}
}

func TestHealthHandler_DetailedHealth_FeedDown(t *testing.T) {
	router, mocks := setupHealthRouter()
	mocks.feed.shouldError = true

	req, _ := http.NewRequest("GET", "/health/detailed", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	// The feed is a soft dependency; a sick register degrades the
	// report, not the status code
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with sick feed, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	feed, ok := response["feed"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected 'feed' object in response")
	}
	if feed["healthy"] != false {
		t.Error("Expected feed healthy false")
	}
	if _, exists := feed["error"]; !exists {
		t.Error("Expected 'error' field in feed report")
	}
}

func TestHealthHandler_DetailedHealth_DatabaseDown(t *testing.T) {
	router, mocks := setupHealthRouter()
	mocks.db.shouldError = true

	req, _ := http.NewRequest("GET", "/health/detailed", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503 when database is down, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["healthy"] != false {
		t.Error("Expected overall healthy false")
	}
}

func TestHealthHandler_GetFeedHealth(t *testing.T) {
	router, _ := setupHealthRouter()

	req, _ := http.NewRequest("GET", "/health/feed", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	health, ok := response["feed_health"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected 'feed_health' object in response")
	}
	if fetches, ok := health["total_fetches"].(float64); !ok || fetches != 12 {
		t.Errorf("Expected 12 total fetches, got %v", health["total_fetches"])
	}
}

func TestHealthHandler_ResetFeedHealth(t *testing.T) {
	router, mocks := setupHealthRouter()

	req, _ := http.NewRequest("POST", "/health/feed/reset", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	if !mocks.feed.resetCalled {
		t.Error("Expected monitor reset to be called")
	}
}
