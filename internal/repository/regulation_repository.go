package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lexfield/regscreen/internal/models"
)

const regulationColumns = `id, title, year, family, secondary_class, tags, live_status,
	   effective_from, effective_to, geo_extent, duty_holders, power_holders,
	   rights_holders, responsibility_holders, roles, description, amends,
	   amended_by, rescinds, rescinded_by, last_amended_at, created_at, updated_at`

// regulationRepository implements RegulationRepository
type regulationRepository struct {
	db dbExecutor
}

// NewRegulationRepository creates a new regulation repository
func NewRegulationRepository(db dbExecutor) RegulationRepository {
	return &regulationRepository{db: db}
}

// GetByID retrieves a regulation record by its register id
func (r *regulationRepository) GetByID(id string) (*models.RegulationRecord, error) {
	query := `SELECT ` + regulationColumns + ` FROM regulation_records WHERE id = $1`

	record, err := scanRegulationRecord(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("regulation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get regulation: %w", err)
	}
	return record, nil
}

// Upsert inserts a regulation record or updates it in place. The corpus is
// keyed by register id, so re-ingesting the same record is idempotent.
func (r *regulationRepository) Upsert(record *models.RegulationRecord) error {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := `
		INSERT INTO regulation_records (
			id, title, year, family, secondary_class, tags, live_status,
			effective_from, effective_to, geo_extent, duty_holders, power_holders,
			rights_holders, responsibility_holders, roles, description, amends,
			amended_by, rescinds, rescinded_by, last_amended_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, year = EXCLUDED.year, family = EXCLUDED.family,
			secondary_class = EXCLUDED.secondary_class, tags = EXCLUDED.tags,
			live_status = EXCLUDED.live_status, effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to, geo_extent = EXCLUDED.geo_extent,
			duty_holders = EXCLUDED.duty_holders, power_holders = EXCLUDED.power_holders,
			rights_holders = EXCLUDED.rights_holders,
			responsibility_holders = EXCLUDED.responsibility_holders,
			roles = EXCLUDED.roles, description = EXCLUDED.description,
			amends = EXCLUDED.amends, amended_by = EXCLUDED.amended_by,
			rescinds = EXCLUDED.rescinds, rescinded_by = EXCLUDED.rescinded_by,
			last_amended_at = EXCLUDED.last_amended_at, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(query,
		record.ID, record.Title, record.Year, record.Family, record.SecondaryClass,
		textArray(record.Tags), record.LiveStatus, record.EffectiveFrom,
		record.EffectiveTo, textArray(jurisdictionStrings(record.GeoExtent)),
		textArray(record.DutyHolders), textArray(record.PowerHolders),
		textArray(record.RightsHolders), textArray(record.ResponsibilityHolders),
		textArray(record.Roles), record.Description, textArray(record.Amends),
		textArray(record.AmendedBy), textArray(record.Rescinds),
		textArray(record.RescindedBy), record.LastAmendedAt,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert regulation: %w", err)
	}
	return nil
}

// Delete removes a regulation record
func (r *regulationRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM regulation_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete regulation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("regulation %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetAll retrieves regulation records with filters
func (r *regulationRepository) GetAll(filters RegulationFilters) ([]models.RegulationRecord, error) {
	query := `SELECT ` + regulationColumns + ` FROM regulation_records`

	var whereClauses []string
	var args []interface{}
	argIndex := 1

	if filters.Family != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("family = $%d", argIndex))
		args = append(args, strings.ToLower(filters.Family))
		argIndex++
	}

	if filters.LiveStatus != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("live_status = $%d", argIndex))
		args = append(args, filters.LiveStatus)
		argIndex++
	}

	if filters.Jurisdiction != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("$%d = ANY(geo_extent)", argIndex))
		args = append(args, filters.Jurisdiction)
		argIndex++
	}

	if filters.TitleSearch != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("title ILIKE $%d", argIndex))
		args = append(args, "%"+filters.TitleSearch+"%")
		argIndex++
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY id"

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
		return nil, fmt.Errorf("failed to query regulations: %w", err)
	}
	defer rows.Close()

	return collectRegulationRecords(rows)
}

// GetAllForScreening loads the full corpus in stable id order, which is the
// record set a snapshot is built from.
func (r *regulationRepository) GetAllForScreening() ([]models.RegulationRecord, error) {
	query := `SELECT ` + regulationColumns + ` FROM regulation_records ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	defer rows.Close()

	return collectRegulationRecords(rows)
}

// CorpusVersion derives a version token from the record count and the most
// recent update, so snapshot caches can detect corpus changes cheaply.
func (r *regulationRepository) CorpusVersion() (string, error) {
	query := `SELECT COUNT(*), COALESCE(MAX(updated_at), TO_TIMESTAMP(0)) FROM regulation_records`

	var count int
	var lastUpdated time.Time
	if err := r.db.QueryRow(query).Scan(&count, &lastUpdated); err != nil {
		return "", fmt.Errorf("failed to get corpus version: %w", err)
	}
	return fmt.Sprintf("%d-%d", count, lastUpdated.UTC().UnixNano()), nil
}

// Count returns the number of records in the corpus
func (r *regulationRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM regulation_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count regulations: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRegulationRecord(row rowScanner) (*models.RegulationRecord, error) {
	record := &models.RegulationRecord{}
	var extent []string

	err := row.Scan(
		&record.ID, &record.Title, &record.Year, &record.Family,
		&record.SecondaryClass, pq.Array(&record.Tags), &record.LiveStatus,
		&record.EffectiveFrom, &record.EffectiveTo, pq.Array(&extent),
		pq.Array(&record.DutyHolders), pq.Array(&record.PowerHolders),
		pq.Array(&record.RightsHolders), pq.Array(&record.ResponsibilityHolders),
		pq.Array(&record.Roles), &record.Description, pq.Array(&record.Amends),
		pq.Array(&record.AmendedBy), pq.Array(&record.Rescinds),
		pq.Array(&record.RescindedBy), &record.LastAmendedAt,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.GeoExtent = jurisdictionList(extent)
	return record, nil
}

func collectRegulationRecords(rows *sql.Rows) ([]models.RegulationRecord, error) {
	var records []models.RegulationRecord
	for rows.Next() {
		record, err := scanRegulationRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan regulation: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read regulations: %w", err)
	}
	return records, nil
}

// textArray wraps a string slice for a NOT NULL text[] column; nil slices
// are stored as empty arrays rather than NULL.
func textArray(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ss)
}

func jurisdictionStrings(js []models.Jurisdiction) []string {
	out := make([]string, len(js))
	for i, j := range js {
		out[i] = string(j)
	}
	return out
}

func jurisdictionList(ss []string) []models.Jurisdiction {
	if len(ss) == 0 {
		return nil
	}
	out := make([]models.Jurisdiction, len(ss))
	for i, s := range ss {
		out[i] = models.Jurisdiction(s)
	}
	return out
}
