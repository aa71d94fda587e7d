package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/cache"
	"github.com/lexfield/regscreen/internal/matching"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
)

// MockRegulationRepository implements repository.RegulationRepository in
// memory
type MockRegulationRepository struct {
	mu      sync.Mutex
	records map[string]models.RegulationRecord

	corpusErr error
	upsertErr error

	versionCalls int
	loadCalls    int
	upsertCalls  int
}

func NewMockRegulationRepository() *MockRegulationRepository {
	return &MockRegulationRepository{records: make(map[string]models.RegulationRecord)}
}

func (m *MockRegulationRepository) GetByID(id string) (*models.RegulationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("regulation %s: %w", id, repository.ErrNotFound)
	}
	return &rec, nil
}

func (m *MockRegulationRepository) Upsert(record *models.RegulationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upsertCalls++
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	m.records[record.ID] = *record
	return nil
}

func (m *MockRegulationRepository) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("regulation %s: %w", id, repository.ErrNotFound)
	}
	delete(m.records, id)
	return nil
}

func (m *MockRegulationRepository) GetAll(filters repository.RegulationFilters) ([]models.RegulationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegulationRecord
	for _, rec := range m.records {
		if filters.Family != "" && !strings.EqualFold(rec.Family, filters.Family) {
			continue
		}
		if filters.LiveStatus != "" && string(rec.LiveStatus) != filters.LiveStatus {
			continue
		}
		if filters.TitleSearch != "" && !strings.Contains(strings.ToLower(rec.Title), strings.ToLower(filters.TitleSearch)) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (m *MockRegulationRepository) GetAllForScreening() ([]models.RegulationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corpusErr != nil {
		return nil, m.corpusErr
	}
	m.loadCalls++
	out := make([]models.RegulationRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockRegulationRepository) CorpusVersion() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corpusErr != nil {
		return "", m.corpusErr
	}
	m.versionCalls++
	var latest time.Time
	for _, rec := range m.records {
		if rec.UpdatedAt.After(latest) {
			latest = rec.UpdatedAt
		}
	}
	return fmt.Sprintf("%d-%d", len(m.records), latest.UTC().UnixNano()), nil
}

func (m *MockRegulationRepository) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

// MockOrganizationRepository implements repository.OrganizationRepository
// in memory
type MockOrganizationRepository struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]models.OrganizationProfile

	getErr error

	getAllCalls int
	markCalls   int
}

func NewMockOrganizationRepository() *MockOrganizationRepository {
	return &MockOrganizationRepository{profiles: make(map[uuid.UUID]models.OrganizationProfile)}
}

func (m *MockOrganizationRepository) GetByID(id uuid.UUID) (*models.OrganizationProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	profile, ok := m.profiles[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, repository.ErrNotFound)
	}
	return &profile, nil
}

func (m *MockOrganizationRepository) Create(profile *models.OrganizationProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	m.profiles[profile.ID] = *profile
	return nil
}

func (m *MockOrganizationRepository) Update(profile *models.OrganizationProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ID]; !ok {
		return fmt.Errorf("organization %s: %w", profile.ID, repository.ErrNotFound)
	}
	profile.UpdatedAt = time.Now().UTC()
	m.profiles[profile.ID] = *profile
	return nil
}

func (m *MockOrganizationRepository) Delete(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return fmt.Errorf("organization %s: %w", id, repository.ErrNotFound)
	}
	delete(m.profiles, id)
	return nil
}

func (m *MockOrganizationRepository) GetAll(filters repository.OrganizationFilters) ([]models.OrganizationProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	var out []models.OrganizationProfile
	for _, profile := range m.profiles {
		if filters.SectorCode != "" && profile.SectorCode != filters.SectorCode {
			continue
		}
		if filters.OrgType != "" && string(profile.OrgType) != filters.OrgType {
			continue
		}
		out = append(out, profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (m *MockOrganizationRepository) GetStale(olderThan time.Time, limit int) ([]models.OrganizationProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrganizationProfile
	for _, profile := range m.profiles {
		if profile.LastScreenedAt == nil || profile.LastScreenedAt.Before(olderThan) {
			out = append(out, profile)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastScreenedAt, out[j].LastScreenedAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockOrganizationRepository) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles), nil
}

func (m *MockOrganizationRepository) StaleCount(olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, profile := range m.profiles {
		if profile.LastScreenedAt == nil || profile.LastScreenedAt.Before(olderThan) {
			count++
		}
	}
	return count, nil
}

func (m *MockOrganizationRepository) MergeAttributes(id uuid.UUID, attrs models.AttributeMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[id]
	if !ok {
		return fmt.Errorf("organization %s: %w", id, repository.ErrNotFound)
	}
	if profile.Attributes == nil {
		profile.Attributes = models.AttributeMap{}
	}
	for k, v := range attrs {
		profile.Attributes[k] = v
	}
	profile.UpdatedAt = time.Now().UTC()
	m.profiles[id] = profile
	return nil
}

func (m *MockOrganizationRepository) MarkScreened(id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[id]
	if !ok {
		return fmt.Errorf("organization %s: %w", id, repository.ErrNotFound)
	}
	m.markCalls++
	profile.LastScreenedAt = &at
	profile.UpdatedAt = time.Now().UTC()
	m.profiles[id] = profile
	return nil
}

// mustGet returns the stored profile or fails the test
func (m *MockOrganizationRepository) mustGet(t *testing.T, id uuid.UUID) models.OrganizationProfile {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[id]
	if !ok {
		t.Fatalf("organization %s not in mock store", id)
	}
	return profile
}

// MockResultRepository implements repository.ResultRepository in memory
type MockResultRepository struct {
	mu      sync.Mutex
	results map[uuid.UUID][]models.MatchResult

	replaceErr   error
	replaceCalls int
}

func NewMockResultRepository() *MockResultRepository {
	return &MockResultRepository{results: make(map[uuid.UUID][]models.MatchResult)}
}

func (m *MockResultRepository) ReplaceForOrganization(orgID uuid.UUID, results []models.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaceCalls++
	stored := make([]models.MatchResult, len(results))
	copy(stored, results)
	m.results[orgID] = stored
	return nil
}

func (m *MockResultRepository) GetByOrganization(orgID uuid.UUID) ([]models.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.results[orgID]
	out := make([]models.MatchResult, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *MockResultRepository) LawCategoryCounts(orgID uuid.UUID) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, result := range m.results[orgID] {
		counts[result.Family]++
	}
	return counts, nil
}

func (m *MockResultRepository) AllLawCategoryCounts() (map[uuid.UUID]map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make(map[uuid.UUID]map[string]int)
	for orgID, results := range m.results {
		counts := make(map[string]int)
		for _, result := range results {
			counts[result.Family]++
		}
		all[orgID] = counts
	}
	return all, nil
}

// MockTransactionManager runs the callback against the same repositories
// without any transaction semantics
type MockTransactionManager struct {
	mu       sync.Mutex
	repos    *repository.Repositories
	beginErr error
	calls    int
}

func (m *MockTransactionManager) WithTransaction(fn func(repos *repository.Repositories) error) error {
	m.mu.Lock()
	if m.beginErr != nil {
		m.mu.Unlock()
		return m.beginErr
	}
	m.calls++
	repos := m.repos
	m.mu.Unlock()
	return fn(repos)
}

func (m *MockTransactionManager) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// newMockRepos wires a full set of in-memory repositories
func newMockRepos() (*repository.Repositories, *MockRegulationRepository, *MockOrganizationRepository, *MockResultRepository) {
	regRepo := NewMockRegulationRepository()
	orgRepo := NewMockOrganizationRepository()
	resRepo := NewMockResultRepository()
	repos := &repository.Repositories{
		Regulation:   regRepo,
		Organization: orgRepo,
		Result:       resRepo,
	}
	repos.Tx = &MockTransactionManager{repos: repos}
	return repos, regRepo, orgRepo, resRepo
}

func newTestEngine(t testing.TB) *matching.Engine {
	t.Helper()
	engine, err := matching.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func newTestStore() *cache.Store {
	return cache.New(time.Minute, time.Minute)
}

// Fixtures

var screenTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func testProfile(name string) *models.OrganizationProfile {
	count := 120
	return &models.OrganizationProfile{
		ID:             uuid.New(),
		Name:           name,
		Domain:         strings.ToLower(strings.ReplaceAll(name, " ", "")) + ".co.uk",
		SectorCode:     "41201",
		OrgType:        models.OrgTypeLimitedCompany,
		HQJurisdiction: models.JurisdictionEngland,
		EmployeeCount:  &count,
		Roles:          []string{"employer"},
		Activities:     []string{"construction work on commercial sites"},
	}
}

func inForceRecord(id string) models.RegulationRecord {
	from := time.Date(2015, 4, 6, 0, 0, 0, 0, time.UTC)
	return models.RegulationRecord{
		ID:            id,
		Title:         "Construction (Design and Management) Regulations 2015",
		Year:          2015,
		Family:        "construction",
		Tags:          []string{"construction", "site safety"},
		LiveStatus:    models.StatusInForce,
		EffectiveFrom: &from,
		GeoExtent:     []models.Jurisdiction{models.JurisdictionGreatBritain},
		DutyHolders:   []string{"employer", "principal contractor"},
		Description:   "Client and contractor duties on construction projects",
	}
}

func revokedRecord(id string) models.RegulationRecord {
	rec := inForceRecord(id)
	rec.Title = "Construction (Head Protection) Regulations 1989"
	rec.Year = 1989
	rec.LiveStatus = models.StatusRevoked
	return rec
}
