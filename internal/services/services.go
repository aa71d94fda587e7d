package services

import (
	"database/sql"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/cache"
	"github.com/lexfield/regscreen/internal/matching"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
	"github.com/lexfield/regscreen/pkg/config"
)

// Services contains all application services
type Services struct {
	Screening    ScreeningService
	Similarity   SimilarityService
	Organization OrganizationService
	Regulation   RegulationService
	Export       ResultExportService
	Pipeline     *ScreeningPipeline
}

// ScreeningService defines the interface for applicability screening
type ScreeningService interface {
	// ScreenProfile screens an ad-hoc profile against the current corpus
	// snapshot. Nothing is persisted.
	ScreenProfile(profile *models.OrganizationProfile, now time.Time) ([]models.MatchResult, error)

	// ScreenOrganization screens a stored profile and atomically replaces
	// its persisted results.
	ScreenOrganization(id uuid.UUID, now time.Time) ([]models.MatchResult, error)

	// GetResults returns the persisted results of the last screening run
	GetResults(id uuid.UUID) ([]models.MatchResult, error)

	// Snapshot returns the corpus snapshot screening currently runs against
	Snapshot() (*matching.CorpusSnapshot, error)
}

// SimilarityService defines the interface for anonymized peer lookups
type SimilarityService interface {
	FindSimilar(id uuid.UUID) ([]models.SimilarityMatch, error)
}

// OrganizationService defines the interface for organization profile
// business logic
type OrganizationService interface {
	GetByID(id uuid.UUID) (*models.OrganizationProfile, error)
	GetAll(filters repository.OrganizationFilters) ([]models.OrganizationProfile, error)
	Create(profile *models.OrganizationProfile) error
	Update(profile *models.OrganizationProfile) error
	MergeAttributes(id uuid.UUID, attrs models.AttributeMap) error
	Delete(id uuid.UUID) error
}

// RegulationService defines the interface for corpus record management
type RegulationService interface {
	GetByID(id string) (*models.RegulationRecord, error)
	GetAll(filters repository.RegulationFilters) ([]models.RegulationRecord, error)
	Upsert(record *models.RegulationRecord) error
	Delete(id string) error
	ImportCSV(r io.Reader) (*ImportSummary, error)
	CorpusInfo() (*CorpusInfo, error)
}

// ResultExportService defines the interface for exporting persisted
// screening results
type ResultExportService interface {
	Export(id uuid.UUID, format ExportFormat) ([]byte, error)
}

// NewServices creates a new Services instance with all dependencies
func NewServices(db *sql.DB, cfg *config.Config) (*Services, error) {
	repos := repository.NewRepositories(db)
	store := cache.New(cfg.SnapshotTTL, 2*cfg.SnapshotTTL)

	opts := []matching.EngineOption{
		matching.WithSimilarityThreshold(cfg.SimilarityThreshold),
		matching.WithSimilarityLimit(cfg.SimilarityLimit),
	}
	if cfg.HasTokenSalt() {
		opts = append(opts, matching.WithTokenSalt([]byte(cfg.AnonTokenSalt)))
	}
	engine, err := matching.NewEngine(opts...)
	if err != nil {
		return nil, err
	}

	screening := newScreeningService(repos, engine, store)

	return &Services{
		Screening:    screening,
		Similarity:   newSimilarityService(repos, engine, store),
		Organization: newOrganizationService(repos, store),
		Regulation:   newRegulationService(repos, store),
		Export:       newResultExportService(repos),
		Pipeline:     NewScreeningPipeline(repos, screening),
	}, nil
}

// NewScreeningService creates a standalone screening service
func NewScreeningService(repos *repository.Repositories, engine *matching.Engine, store *cache.Store) ScreeningService {
	return newScreeningService(repos, engine, store)
}
