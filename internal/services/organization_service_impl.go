package services

import (
	stderrors "errors"
	"strings"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/cache"
	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/logger"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// organizationServiceImpl implements OrganizationService
type organizationServiceImpl struct {
	repos  *repository.Repositories
	store  *cache.Store
	logger logger.Logger
}

// newOrganizationService creates a new organization service implementation
func newOrganizationService(repos *repository.Repositories, store *cache.Store) *organizationServiceImpl {
	return &organizationServiceImpl{
		repos:  repos,
		store:  store,
		logger: logger.NewComponentLogger("organizations"),
	}
}

// GetByID retrieves an organization profile by ID
func (s *organizationServiceImpl) GetByID(id uuid.UUID) (*models.OrganizationProfile, error) {
	profile, err := s.repos.Organization.GetByID(id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("organization not found", err).WithOperation("GetOrganization")
		}
		return nil, errors.DatabaseError("failed to get organization", err).WithOperation("GetOrganization")
	}
	return profile, nil
}

// GetAll retrieves organization profiles matching the filters
func (s *organizationServiceImpl) GetAll(filters repository.OrganizationFilters) ([]models.OrganizationProfile, error) {
	filters.Limit = clampLimit(filters.Limit)

	profiles, err := s.repos.Organization.GetAll(filters)
	if err != nil {
		return nil, errors.DatabaseError("failed to list organizations", err).WithOperation("ListOrganizations")
	}
	return profiles, nil
}

// Create validates and stores a new organization profile
func (s *organizationServiceImpl) Create(profile *models.OrganizationProfile) error {
	if profile == nil {
		return errors.ValidationError("organization profile is required", nil).WithOperation("CreateOrganization")
	}
	if strings.TrimSpace(profile.Name) == "" {
		return errors.ValidationError("organization name is required", nil).WithOperation("CreateOrganization")
	}
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if err := profile.Validate(); err != nil {
		return errors.ValidationError("invalid organization profile", err).WithOperation("CreateOrganization")
	}

	if err := s.repos.Organization.Create(profile); err != nil {
		return errors.DatabaseError("failed to create organization", err).WithOperation("CreateOrganization")
	}

	s.store.InvalidateSimilarityCandidates()
	s.logger.Info("Created organization", "organization_id", profile.ID.String(), "name", profile.Name)
	return nil
}

// Update validates and replaces an existing organization profile
func (s *organizationServiceImpl) Update(profile *models.OrganizationProfile) error {
	if profile == nil || profile.ID == uuid.Nil {
		return errors.ValidationError("organization id is required", nil).WithOperation("UpdateOrganization")
	}
	if strings.TrimSpace(profile.Name) == "" {
		return errors.ValidationError("organization name is required", nil).WithOperation("UpdateOrganization")
	}
	if err := profile.Validate(); err != nil {
		return errors.ValidationError("invalid organization profile", err).WithOperation("UpdateOrganization")
	}

	if err := s.repos.Organization.Update(profile); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("organization not found", err).WithOperation("UpdateOrganization")
		}
		return errors.DatabaseError("failed to update organization", err).WithOperation("UpdateOrganization")
	}

	s.store.InvalidateSimilarityCandidates()
	return nil
}

// MergeAttributes folds new attributes into the profile without touching
// its other fields
func (s *organizationServiceImpl) MergeAttributes(id uuid.UUID, attrs models.AttributeMap) error {
	if len(attrs) == 0 {
		return errors.ValidationError("no attributes supplied", nil).WithOperation("MergeAttributes")
	}
	if err := attrs.Validate(); err != nil {
		return errors.ValidationError("invalid attributes", err).WithOperation("MergeAttributes")
	}

	if err := s.repos.Organization.MergeAttributes(id, attrs); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("organization not found", err).WithOperation("MergeAttributes")
		}
		return errors.DatabaseError("failed to merge attributes", err).WithOperation("MergeAttributes")
	}

	s.store.InvalidateSimilarityCandidates()
	return nil
}

// Delete removes an organization profile and, via the store's cascade,
// its persisted screening results.
func (s *organizationServiceImpl) Delete(id uuid.UUID) error {
	if err := s.repos.Organization.Delete(id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("organization not found", err).WithOperation("DeleteOrganization")
		}
		return errors.DatabaseError("failed to delete organization", err).WithOperation("DeleteOrganization")
	}

	s.store.InvalidateSimilarityCandidates()
	s.logger.Info("Deleted organization", "organization_id", id.String())
	return nil
}

// clampLimit applies the default page size and caps runaway limits
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
