package services

import (
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/cache"
	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/logger"
	"github.com/lexfield/regscreen/internal/matching"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
)

// similarityServiceImpl implements SimilarityService
type similarityServiceImpl struct {
	repos  *repository.Repositories
	engine *matching.Engine
	store  *cache.Store
	logger logger.Logger
}

// newSimilarityService creates a new similarity service implementation
func newSimilarityService(repos *repository.Repositories, engine *matching.Engine, store *cache.Store) *similarityServiceImpl {
	return &similarityServiceImpl{
		repos:  repos,
		engine: engine,
		store:  store,
		logger: logger.NewComponentLogger("similarity"),
	}
}

// FindSimilar returns anonymized peers of the organization, strongest
// match first. The candidate pool is every stored profile plus the law
// category distribution of its persisted results; the engine excludes the
// queried organization itself and anything sharing its domain.
func (s *similarityServiceImpl) FindSimilar(id uuid.UUID) ([]models.SimilarityMatch, error) {
	profile, err := s.repos.Organization.GetByID(id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("organization not found", err).WithOperation("FindSimilar")
		}
		return nil, errors.DatabaseError("failed to load organization", err).WithOperation("FindSimilar")
	}

	candidates, err := s.candidates()
	if err != nil {
		return nil, err
	}

	matches := s.engine.FindSimilar(profile, candidates)
	s.logger.Debug("Similarity lookup",
		"organization_id", id.String(),
		"candidates", len(candidates),
		"matches", len(matches))
	return matches, nil
}

// candidates assembles the similarity candidate pool, cached until a
// profile or screening result changes. Profiles never screened still
// participate; they simply carry no category counts.
func (s *similarityServiceImpl) candidates() ([]matching.SimilarityCandidate, error) {
	if cached, ok := s.store.SimilarityCandidates(); ok {
		return cached, nil
	}

	counts, err := s.repos.Result.AllLawCategoryCounts()
	if err != nil {
		return nil, errors.DatabaseError("failed to load law category counts", err).WithOperation("FindSimilar")
	}

	profiles, err := s.repos.Organization.GetAll(repository.OrganizationFilters{})
	if err != nil {
		return nil, errors.DatabaseError("failed to load organizations", err).WithOperation("FindSimilar")
	}

	candidates := make([]matching.SimilarityCandidate, 0, len(profiles))
	for _, profile := range profiles {
		candidates = append(candidates, matching.SimilarityCandidate{
			Profile:           profile,
			LawCategoryCounts: counts[profile.ID],
		})
	}

	s.store.SetSimilarityCandidates(candidates)
	return candidates, nil
}
