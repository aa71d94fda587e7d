package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/models"
)

// ErrNotFound is returned when a requested row does not exist. Callers
// detect it with errors.Is and map it to their own not-found handling.
var ErrNotFound = errors.New("not found")

// RegulationRepository defines the interface for regulation corpus access
type RegulationRepository interface {
	GetByID(id string) (*models.RegulationRecord, error)
	Upsert(record *models.RegulationRecord) error
	Delete(id string) error

	// Bulk operations
	GetAll(filters RegulationFilters) ([]models.RegulationRecord, error)
	GetAllForScreening() ([]models.RegulationRecord, error)
	CorpusVersion() (string, error)
	Count() (int, error)
}

// OrganizationRepository defines the interface for organization profile access
type OrganizationRepository interface {
	GetByID(id uuid.UUID) (*models.OrganizationProfile, error)
	Create(profile *models.OrganizationProfile) error
	Update(profile *models.OrganizationProfile) error
	Delete(id uuid.UUID) error

	// Bulk operations
	GetAll(filters OrganizationFilters) ([]models.OrganizationProfile, error)
	GetStale(olderThan time.Time, limit int) ([]models.OrganizationProfile, error)
	Count() (int, error)
	StaleCount(olderThan time.Time) (int, error)

	// Mutation helpers
	MergeAttributes(id uuid.UUID, attrs models.AttributeMap) error
	MarkScreened(id uuid.UUID, at time.Time) error
}

// ResultRepository defines the interface for persisted screening results
type ResultRepository interface {
	ReplaceForOrganization(orgID uuid.UUID, results []models.MatchResult) error
	GetByOrganization(orgID uuid.UUID) ([]models.MatchResult, error)
	LawCategoryCounts(orgID uuid.UUID) (map[string]int, error)
	AllLawCategoryCounts() (map[uuid.UUID]map[string]int, error)
}

// TransactionManager defines the interface for database transaction management
type TransactionManager interface {
	WithTransaction(fn func(repos *Repositories) error) error
}

// Repositories groups all repository interfaces
type Repositories struct {
	Regulation   RegulationRepository
	Organization OrganizationRepository
	Result       ResultRepository
	Tx           TransactionManager
}

// RegulationFilters defines filters for querying the corpus
type RegulationFilters struct {
	Family       string
	LiveStatus   string
	Jurisdiction string
	TitleSearch  string
	Limit        int
	Offset       int
}

// OrganizationFilters defines filters for querying organization profiles
type OrganizationFilters struct {
	SectorCode string
	OrgType    string
	Limit      int
	Offset     int
}
