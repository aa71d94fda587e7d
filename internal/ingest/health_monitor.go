package ingest

import (
	"strings"
	"sync"
	"time"
)

const (
	maxRecentFailures    = 25
	failureRateThreshold = 0.2
	consecutiveThreshold = 5
)

// FeedMonitor tracks register fetch outcomes so operators can tell a
// broken feed from a quiet one.
type FeedMonitor struct {
	mu                  sync.RWMutex
	totalFetches        int64
	failedFetches       int64
	consecutiveFailures int64
	lastSuccessTime     time.Time
	lastFailureTime     time.Time
	recentFailures      []FetchFailure
}

// FetchFailure records a single failed register fetch
type FetchFailure struct {
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Error     string    `json:"error"`
}

// FeedHealth is the externally visible feed state
type FeedHealth struct {
	Healthy             bool           `json:"healthy"`
	TotalFetches        int64          `json:"total_fetches"`
	FailedFetches       int64          `json:"failed_fetches"`
	SuccessRate         float64        `json:"success_rate"`
	ConsecutiveFailures int64          `json:"consecutive_failures"`
	LastSuccessTime     *time.Time     `json:"last_success_time,omitempty"`
	LastFailureTime     *time.Time     `json:"last_failure_time,omitempty"`
	RecentFailures      []FetchFailure `json:"recent_failures,omitempty"`
	Issues              []string       `json:"issues,omitempty"`
}

// NewFeedMonitor creates a new feed monitor
func NewFeedMonitor() *FeedMonitor {
	return &FeedMonitor{
		recentFailures: make([]FetchFailure, 0, maxRecentFailures),
	}
}

// RecordSuccess records a successful register fetch
func (m *FeedMonitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalFetches++
	m.consecutiveFailures = 0
	m.lastSuccessTime = time.Now()
}

// RecordFailure records a failed register fetch
func (m *FeedMonitor) RecordFailure(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalFetches++
	m.failedFetches++
	m.consecutiveFailures++
	m.lastFailureTime = time.Now()

	m.recentFailures = append(m.recentFailures, FetchFailure{
		Timestamp: m.lastFailureTime,
		Path:      path,
		Error:     err.Error(),
	})
	if len(m.recentFailures) > maxRecentFailures {
		m.recentFailures = m.recentFailures[1:]
	}
}

// Status returns the current feed health
func (m *FeedMonitor) Status() FeedHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := FeedHealth{
		Healthy:             true,
		TotalFetches:        m.totalFetches,
		FailedFetches:       m.failedFetches,
		SuccessRate:         1.0,
		ConsecutiveFailures: m.consecutiveFailures,
		RecentFailures:      append([]FetchFailure(nil), m.recentFailures...),
	}
	if m.totalFetches > 0 {
		health.SuccessRate = float64(m.totalFetches-m.failedFetches) / float64(m.totalFetches)
	}
	if !m.lastSuccessTime.IsZero() {
		t := m.lastSuccessTime
		health.LastSuccessTime = &t
	}
	if !m.lastFailureTime.IsZero() {
		t := m.lastFailureTime
		health.LastFailureTime = &t
	}

	if m.totalFetches >= 10 && health.SuccessRate < 1.0-failureRateThreshold {
		health.Healthy = false
		health.Issues = append(health.Issues, "high register fetch failure rate")
	}
	if m.consecutiveFailures >= consecutiveThreshold {
		health.Healthy = false
		health.Issues = append(health.Issues, "consecutive register fetch failures")
	}
	if issue, found := m.dominantFailureKind(); found {
		health.Issues = append(health.Issues, issue)
	}

	return health
}

// Healthy reports whether the feed is operating normally
func (m *FeedMonitor) Healthy() bool {
	return m.Status().Healthy
}

// Reset clears all recorded fetch history
func (m *FeedMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalFetches = 0
	m.failedFetches = 0
	m.consecutiveFailures = 0
	m.lastSuccessTime = time.Time{}
	m.lastFailureTime = time.Time{}
	m.recentFailures = m.recentFailures[:0]
}

// dominantFailureKind reports when more than half of the recent
// failures share one cause.
func (m *FeedMonitor) dominantFailureKind() (string, bool) {
	if len(m.recentFailures) < 3 {
		return "", false
	}

	counts := make(map[string]int)
	for _, failure := range m.recentFailures {
		counts[categorizeFetchError(failure.Error)]++
	}
	for kind, count := range counts {
		if kind != "other" && float64(count)/float64(len(m.recentFailures)) > 0.5 {
			return "recent failures are mostly " + kind + " errors", true
		}
	}
	return "", false
}

// categorizeFetchError buckets an error message by cause
func categorizeFetchError(msg string) string {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return "rate-limit"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "dns") || strings.Contains(msg, "network"):
		return "network"
	case strings.Contains(msg, "status 5"):
		return "server"
	}
	return "other"
}
