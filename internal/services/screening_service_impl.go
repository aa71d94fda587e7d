package services

import (
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/cache"
	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/logger"
	"github.com/lexfield/regscreen/internal/matching"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
)

// screeningServiceImpl implements ScreeningService
type screeningServiceImpl struct {
	repos  *repository.Repositories
	engine *matching.Engine
	store  *cache.Store
	logger logger.Logger

	// lastGood holds the most recent snapshot successfully built from the
	// store. When the cache has expired and the database is unreachable,
	// screening serves this instead of failing outright.
	lastGood atomic.Pointer[matching.CorpusSnapshot]
}

// newScreeningService creates a new screening service implementation
func newScreeningService(repos *repository.Repositories, engine *matching.Engine, store *cache.Store) *screeningServiceImpl {
	return &screeningServiceImpl{
		repos:  repos,
		engine: engine,
		store:  store,
		logger: logger.NewComponentLogger("screening"),
	}
}

// ScreenProfile screens an ad-hoc profile without persisting anything
func (s *screeningServiceImpl) ScreenProfile(profile *models.OrganizationProfile, now time.Time) ([]models.MatchResult, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	results, err := s.engine.Screen(profile, snap, now)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Screened ad-hoc profile", "matches", len(results), "corpus_version", snap.Version())
	return results, nil
}

// ScreenOrganization screens a stored profile and replaces its persisted
// results. The result rows and the last-screened stamp are written in one
// transaction so readers never observe a half-updated run.
func (s *screeningServiceImpl) ScreenOrganization(id uuid.UUID, now time.Time) ([]models.MatchResult, error) {
	profile, err := s.repos.Organization.GetByID(id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("organization not found", err).WithOperation("ScreenOrganization")
		}
		return nil, errors.DatabaseError("failed to load organization", err).WithOperation("ScreenOrganization")
	}

	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	results, err := s.engine.Screen(profile, snap, now)
	if err != nil {
		return nil, err
	}

	err = s.repos.Tx.WithTransaction(func(txRepos *repository.Repositories) error {
		if err := txRepos.Result.ReplaceForOrganization(id, results); err != nil {
			return err
		}
		return txRepos.Organization.MarkScreened(id, now)
	})
	if err != nil {
		return nil, errors.DatabaseError("failed to persist screening results", err).WithOperation("ScreenOrganization")
	}

	// Persisted law category counts feed the similarity candidate set.
	s.store.InvalidateSimilarityCandidates()

	s.logger.Info("Screened organization",
		"organization_id", id.String(),
		"matches", len(results),
		"corpus_version", snap.Version())
	return results, nil
}

// GetResults returns the persisted results of the organization's last
// screening run, best match first.
func (s *screeningServiceImpl) GetResults(id uuid.UUID) ([]models.MatchResult, error) {
	if _, err := s.repos.Organization.GetByID(id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("organization not found", err).WithOperation("GetResults")
		}
		return nil, errors.DatabaseError("failed to load organization", err).WithOperation("GetResults")
	}

	results, err := s.repos.Result.GetByOrganization(id)
	if err != nil {
		return nil, errors.DatabaseError("failed to load screening results", err).WithOperation("GetResults")
	}
	return results, nil
}

// Snapshot returns the corpus snapshot to screen against: the cached one
// when fresh, otherwise a rebuild keyed on the store's version token. A
// version match lets the previous snapshot be reused without re-reading
// every record.
func (s *screeningServiceImpl) Snapshot() (*matching.CorpusSnapshot, error) {
	if snap, ok := s.store.Snapshot(); ok {
		return snap, nil
	}

	version, err := s.repos.Regulation.CorpusVersion()
	if err != nil {
		return s.fallbackSnapshot(err)
	}

	if last := s.lastGood.Load(); last != nil && last.Version() == version {
		s.store.SetSnapshot(last)
		return last, nil
	}

	records, err := s.repos.Regulation.GetAllForScreening()
	if err != nil {
		return s.fallbackSnapshot(err)
	}

	snap := matching.NewCorpusSnapshot(version, time.Now().UTC(), records)
	s.store.SetSnapshot(snap)
	s.lastGood.Store(snap)

	s.logger.Info("Built corpus snapshot", "version", snap.Version(), "records", snap.Len())
	return snap, nil
}

// fallbackSnapshot serves the last known-good snapshot when the store is
// unreachable; with no previous snapshot the corpus is unavailable and
// screening must fail rather than report zero matches.
func (s *screeningServiceImpl) fallbackSnapshot(cause error) (*matching.CorpusSnapshot, error) {
	if last := s.lastGood.Load(); last != nil {
		s.logger.Warn("Serving stale corpus snapshot",
			"version", last.Version(),
			"taken_at", last.TakenAt().Format(time.RFC3339),
			"cause", cause.Error())
		return last, nil
	}
	return nil, errors.CorpusUnavailable("could not load regulation corpus", cause).WithOperation("Snapshot")
}
