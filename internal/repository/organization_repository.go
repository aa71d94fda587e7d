package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lexfield/regscreen/internal/models"
)

const organizationColumns = `id, name, domain, sector_code, org_type, hq_jurisdiction,
	   operating_jurisdictions, employee_count, annual_turnover, roles,
	   activities, attributes, last_screened_at, created_at, updated_at`

// organizationRepository implements OrganizationRepository
type organizationRepository struct {
	db dbExecutor
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db dbExecutor) OrganizationRepository {
	return &organizationRepository{db: db}
}

// GetByID retrieves an organization profile by ID
func (r *organizationRepository) GetByID(id uuid.UUID) (*models.OrganizationProfile, error) {
	query := `SELECT ` + organizationColumns + ` FROM organization_profiles WHERE id = $1`

	profile, err := scanOrganizationProfile(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return profile, nil
}

// Create creates a new organization profile
func (r *organizationRepository) Create(profile *models.OrganizationProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}

	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	query := `
		INSERT INTO organization_profiles (
			id, name, domain, sector_code, org_type, hq_jurisdiction,
			operating_jurisdictions, employee_count, annual_turnover, roles,
			activities, attributes, last_screened_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := r.db.Exec(query,
		profile.ID, profile.Name, profile.Domain, profile.SectorCode,
		profile.OrgType, profile.HQJurisdiction,
		textArray(jurisdictionStrings(profile.OperatingJurisdictions)),
		profile.EmployeeCount, profile.AnnualTurnover,
		textArray(profile.Roles), textArray(profile.Activities),
		profile.Attributes, profile.LastScreenedAt,
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Update updates an existing organization profile
func (r *organizationRepository) Update(profile *models.OrganizationProfile) error {
	profile.UpdatedAt = time.Now()

	query := `
		UPDATE organization_profiles SET
			name = $2, domain = $3, sector_code = $4, org_type = $5,
			hq_jurisdiction = $6, operating_jurisdictions = $7,
			employee_count = $8, annual_turnover = $9, roles = $10,
			activities = $11, attributes = $12, updated_at = $13
		WHERE id = $1
	`

	result, err := r.db.Exec(query,
		profile.ID, profile.Name, profile.Domain, profile.SectorCode,
		profile.OrgType, profile.HQJurisdiction,
		textArray(jurisdictionStrings(profile.OperatingJurisdictions)),
		profile.EmployeeCount, profile.AnnualTurnover,
		textArray(profile.Roles), textArray(profile.Activities),
		profile.Attributes, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("organization %s: %w", profile.ID, ErrNotFound)
	}
	return nil
}

// Delete deletes an organization profile
func (r *organizationRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM organization_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetAll retrieves organization profiles with filters
func (r *organizationRepository) GetAll(filters OrganizationFilters) ([]models.OrganizationProfile, error) {
	query := `SELECT ` + organizationColumns + ` FROM organization_profiles`

	var whereClauses []string
	var args []interface{}
	argIndex := 1

	if filters.SectorCode != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("sector_code = $%d", argIndex))
		args = append(args, filters.SectorCode)
		argIndex++
	}

	if filters.OrgType != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("org_type = $%d", argIndex))
		args = append(args, filters.OrgType)
		argIndex++
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY updated_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	defer rows.Close()

	return collectOrganizationProfiles(rows)
}

// GetStale retrieves profiles never screened or last screened before the
// cutoff, oldest first, which is the pipeline's work queue.
func (r *organizationRepository) GetStale(olderThan time.Time, limit int) ([]models.OrganizationProfile, error) {
	query := `SELECT ` + organizationColumns + ` FROM organization_profiles
		WHERE last_screened_at IS NULL OR last_screened_at < $1
		ORDER BY last_screened_at ASC NULLS FIRST`

	args := []interface{}{olderThan}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale organizations: %w", err)
	}
	defer rows.Close()

	return collectOrganizationProfiles(rows)
}

// Count returns the total number of organization profiles
func (r *organizationRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM organization_profiles`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", err)
	}
	return count, nil
}

// StaleCount returns how many profiles GetStale would currently match
func (r *organizationRepository) StaleCount(olderThan time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM organization_profiles
		WHERE last_screened_at IS NULL OR last_screened_at < $1`

	var count int
	if err := r.db.QueryRow(query, olderThan).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stale organizations: %w", err)
	}
	return count, nil
}

// MergeAttributes folds the given attributes into the profile's attribute
// map, overwriting existing keys and leaving the rest untouched.
func (r *organizationRepository) MergeAttributes(id uuid.UUID, attrs models.AttributeMap) error {
	query := `
		UPDATE organization_profiles
		SET attributes = attributes || $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.Exec(query, id, attrs, time.Now())
	if err != nil {
		return fmt.Errorf("failed to merge attributes: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkScreened stamps the profile with the time its results were persisted
func (r *organizationRepository) MarkScreened(id uuid.UUID, at time.Time) error {
	query := `UPDATE organization_profiles SET last_screened_at = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(query, id, at, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark organization screened: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanOrganizationProfile(row rowScanner) (*models.OrganizationProfile, error) {
	profile := &models.OrganizationProfile{}
	var operating []string

	err := row.Scan(
		&profile.ID, &profile.Name, &profile.Domain, &profile.SectorCode,
		&profile.OrgType, &profile.HQJurisdiction, pq.Array(&operating),
		&profile.EmployeeCount, &profile.AnnualTurnover,
		pq.Array(&profile.Roles), pq.Array(&profile.Activities),
		&profile.Attributes, &profile.LastScreenedAt,
		&profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	profile.OperatingJurisdictions = jurisdictionList(operating)
	return profile, nil
}

func collectOrganizationProfiles(rows *sql.Rows) ([]models.OrganizationProfile, error) {
	var profiles []models.OrganizationProfile
	for rows.Next() {
		profile, err := scanOrganizationProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organizations: %w", err)
	}
	return profiles, nil
}
