package repository

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/models"
)

// resultRepository implements ResultRepository
type resultRepository struct {
	db dbExecutor
}

// NewResultRepository creates a new screening result repository
func NewResultRepository(db dbExecutor) ResultRepository {
	return &resultRepository{db: db}
}

// ReplaceForOrganization swaps the organization's persisted results for a
// fresh screening run. Callers wanting atomicity run it inside
// TransactionManager.WithTransaction.
func (r *resultRepository) ReplaceForOrganization(orgID uuid.UUID, results []models.MatchResult) error {
	if _, err := r.db.Exec(`DELETE FROM match_results WHERE organization_id = $1`, orgID); err != nil {
		return fmt.Errorf("failed to clear previous results: %w", err)
	}

	query := `
		INSERT INTO match_results (
			organization_id, regulation_id, title, family, composite,
			breakdown, confidence_lower, confidence_upper, requires_review,
			screened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for i := range results {
		result := &results[i]
		_, err := r.db.Exec(query,
			orgID, result.RegulationID, result.Title, result.Family,
			result.Composite, result.Breakdown, result.Confidence.Lower,
			result.Confidence.Upper, result.Confidence.RequiresReview,
			result.ScreenedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store result for %s: %w", result.RegulationID, err)
		}
	}
	return nil
}

// GetByOrganization returns the organization's persisted results in rank order
func (r *resultRepository) GetByOrganization(orgID uuid.UUID) ([]models.MatchResult, error) {
	query := `
		SELECT regulation_id, title, family, composite, breakdown,
			   confidence_lower, confidence_upper, requires_review, screened_at
		FROM match_results
		WHERE organization_id = $1
		ORDER BY composite DESC, regulation_id ASC
	`

	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []models.MatchResult
	for rows.Next() {
		var result models.MatchResult
		err := rows.Scan(
			&result.RegulationID, &result.Title, &result.Family,
			&result.Composite, &result.Breakdown, &result.Confidence.Lower,
			&result.Confidence.Upper, &result.Confidence.RequiresReview,
			&result.ScreenedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

// LawCategoryCounts aggregates the organization's persisted results by
// regulation family.
func (r *resultRepository) LawCategoryCounts(orgID uuid.UUID) (map[string]int, error) {
	query := `
		SELECT family, COUNT(*)
		FROM match_results
		WHERE organization_id = $1
		GROUP BY family
	`

	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var family string
		var count int
		if err := rows.Scan(&family, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[family] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read category counts: %w", err)
	}
	return counts, nil
}

// AllLawCategoryCounts aggregates persisted results by organization and
// family in one pass, for assembling similarity candidates.
func (r *resultRepository) AllLawCategoryCounts() (map[uuid.UUID]map[string]int, error) {
	query := `
		SELECT organization_id, family, COUNT(*)
		FROM match_results
		GROUP BY organization_id, family
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]map[string]int)
	for rows.Next() {
		var orgID uuid.UUID
		var family string
		var count int
		if err := rows.Scan(&orgID, &family, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		if counts[orgID] == nil {
			counts[orgID] = make(map[string]int)
		}
		counts[orgID][family] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read category counts: %w", err)
	}
	return counts, nil
}
