package services

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lexfield/regscreen/internal/cache"
	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/logger"
	"github.com/lexfield/regscreen/internal/models"
	"github.com/lexfield/regscreen/internal/repository"
)

// maxImportRows caps a single CSV import to keep one upload from holding
// a transaction open indefinitely.
const maxImportRows = 10000

// listSeparator splits multi-value CSV fields (tags, jurisdictions, roles)
const listSeparator = ";"

// ImportSummary reports the outcome of a corpus CSV import. Rows that
// fail to parse or validate are skipped and reported; valid rows are
// imported in a single transaction.
type ImportSummary struct {
	Processed int      `json:"processed"`
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// CorpusInfo describes the stored regulation corpus
type CorpusInfo struct {
	Version string `json:"version"`
	Records int    `json:"records"`
}

// regulationServiceImpl implements RegulationService
type regulationServiceImpl struct {
	repos  *repository.Repositories
	store  *cache.Store
	logger logger.Logger
}

// newRegulationService creates a new regulation service implementation
func newRegulationService(repos *repository.Repositories, store *cache.Store) *regulationServiceImpl {
	return &regulationServiceImpl{
		repos:  repos,
		store:  store,
		logger: logger.NewComponentLogger("regulations"),
	}
}

// GetByID retrieves a corpus record by its register identifier
func (s *regulationServiceImpl) GetByID(id string) (*models.RegulationRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.InvalidInput("regulation id is required", nil).WithOperation("GetRegulation")
	}

	record, err := s.repos.Regulation.GetByID(id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("regulation not found", err).WithOperation("GetRegulation")
		}
		return nil, errors.DatabaseError("failed to get regulation", err).WithOperation("GetRegulation")
	}
	return record, nil
}

// GetAll retrieves corpus records matching the filters
func (s *regulationServiceImpl) GetAll(filters repository.RegulationFilters) ([]models.RegulationRecord, error) {
	filters.Limit = clampLimit(filters.Limit)

	records, err := s.repos.Regulation.GetAll(filters)
	if err != nil {
		return nil, errors.DatabaseError("failed to list regulations", err).WithOperation("ListRegulations")
	}
	return records, nil
}

// Upsert validates and stores a corpus record, inserting or replacing by
// register identifier
func (s *regulationServiceImpl) Upsert(record *models.RegulationRecord) error {
	if record == nil {
		return errors.ValidationError("regulation record is required", nil).WithOperation("UpsertRegulation")
	}

	record.ID = strings.TrimSpace(record.ID)
	record.Title = strings.TrimSpace(record.Title)
	record.Family = strings.ToLower(strings.TrimSpace(record.Family))

	if err := record.Validate(); err != nil {
		return errors.ValidationError("invalid regulation record", err).WithOperation("UpsertRegulation")
	}

	if err := s.repos.Regulation.Upsert(record); err != nil {
		return errors.DatabaseError("failed to upsert regulation", err).WithOperation("UpsertRegulation")
	}

	s.store.InvalidateSnapshot()
	return nil
}

// Delete removes a corpus record
func (s *regulationServiceImpl) Delete(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.InvalidInput("regulation id is required", nil).WithOperation("DeleteRegulation")
	}

	if err := s.repos.Regulation.Delete(id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("regulation not found", err).WithOperation("DeleteRegulation")
		}
		return errors.DatabaseError("failed to delete regulation", err).WithOperation("DeleteRegulation")
	}

	s.store.InvalidateSnapshot()
	s.logger.Info("Deleted regulation", "regulation_id", id)
	return nil
}

// ImportCSV bulk-loads corpus records from CSV. Parsing and validation
// run first; all valid rows are then upserted in one transaction, so a
// storage failure imports nothing. Malformed rows never abort the import.
func (s *regulationServiceImpl) ImportCSV(r io.Reader) (*ImportSummary, error) {
	records, rowErrors, err := parseCorpusCSV(r)
	if err != nil {
		return nil, errors.InvalidInput("could not parse corpus CSV", err).WithOperation("ImportCSV")
	}

	summary := &ImportSummary{
		Processed: len(records) + len(rowErrors),
		Skipped:   len(rowErrors),
		Errors:    rowErrors,
	}
	if len(records) == 0 {
		return summary, nil
	}

	err = s.repos.Tx.WithTransaction(func(txRepos *repository.Repositories) error {
		for i := range records {
			if err := txRepos.Regulation.Upsert(&records[i]); err != nil {
				return fmt.Errorf("record %s: %w", records[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.DatabaseError("corpus import failed", err).WithOperation("ImportCSV")
	}

	summary.Imported = len(records)
	s.store.InvalidateSnapshot()
	s.logger.Info("Imported corpus records", "imported", summary.Imported, "skipped", summary.Skipped)
	return summary, nil
}

// CorpusInfo returns the corpus version token and record count
func (s *regulationServiceImpl) CorpusInfo() (*CorpusInfo, error) {
	version, err := s.repos.Regulation.CorpusVersion()
	if err != nil {
		return nil, errors.DatabaseError("failed to read corpus version", err).WithOperation("CorpusInfo")
	}

	count, err := s.repos.Regulation.Count()
	if err != nil {
		return nil, errors.DatabaseError("failed to count corpus records", err).WithOperation("CorpusInfo")
	}

	return &CorpusInfo{Version: version, Records: count}, nil
}

// requiredImportColumns are the header names every corpus CSV must carry
var requiredImportColumns = []string{"id", "title", "family", "live_status", "geo_extent"}

// parseCorpusCSV reads a header-driven corpus CSV into validated records.
// Column order is free; multi-value fields use semicolons. Returns the
// valid records, per-row error messages for skipped rows, and a terminal
// error only when the file as a whole is unusable.
func parseCorpusCSV(r io.Reader) ([]models.RegulationRecord, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredImportColumns {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", col)
		}
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	list := func(row []string, name string) []string {
		return splitList(field(row, name))
	}

	var records []models.RegulationRecord
	var rowErrors []string
	seen := make(map[string]bool)

	for line := 2; ; line++ {
		if line-2 >= maxImportRows {
			return nil, nil, fmt.Errorf("too many rows, maximum %d allowed per import", maxImportRows)
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		rec, err := recordFromRow(row, field, list)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if seen[rec.ID] {
			rowErrors = append(rowErrors, fmt.Sprintf("line %d: duplicate id %q", line, rec.ID))
			continue
		}

		seen[rec.ID] = true
		records = append(records, rec)
	}

	return records, rowErrors, nil
}

// recordFromRow builds and validates one corpus record from a CSV row
func recordFromRow(row []string, field func([]string, string) string, list func([]string, string) []string) (models.RegulationRecord, error) {
	rec := models.RegulationRecord{
		ID:             field(row, "id"),
		Title:          field(row, "title"),
		Family:         strings.ToLower(field(row, "family")),
		SecondaryClass: strings.ToLower(field(row, "secondary_class")),
		LiveStatus:     models.LiveStatus(strings.ToLower(field(row, "live_status"))),
		Description:    field(row, "description"),

		Tags:                  splitList(strings.ToLower(field(row, "tags"))),
		DutyHolders:           list(row, "duty_holders"),
		PowerHolders:          list(row, "power_holders"),
		RightsHolders:         list(row, "rights_holders"),
		ResponsibilityHolders: list(row, "responsibility_holders"),
		Roles:                 list(row, "roles"),

		Amends:      list(row, "amends"),
		AmendedBy:   list(row, "amended_by"),
		Rescinds:    list(row, "rescinds"),
		RescindedBy: list(row, "rescinded_by"),
	}

	if s := field(row, "year"); s != "" {
		year, err := strconv.Atoi(s)
		if err != nil {
			return rec, fmt.Errorf("invalid year %q", s)
		}
		rec.Year = year
	}

	for _, name := range []string{"effective_from", "effective_to", "last_amended_at"} {
		s := field(row, name)
		if s == "" {
			continue
		}
		t, err := parseImportDate(s)
		if err != nil {
			return rec, fmt.Errorf("invalid %s %q", name, s)
		}
		switch name {
		case "effective_from":
			rec.EffectiveFrom = &t
		case "effective_to":
			rec.EffectiveTo = &t
		case "last_amended_at":
			rec.LastAmendedAt = &t
		}
	}

	for _, part := range list(row, "geo_extent") {
		j, ok := models.ParseJurisdiction(part)
		if !ok {
			return rec, fmt.Errorf("unknown jurisdiction %q", part)
		}
		rec.GeoExtent = append(rec.GeoExtent, j)
	}

	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

// splitList breaks a semicolon-separated field into trimmed parts
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, listSeparator) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseImportDate accepts plain dates and RFC 3339 timestamps
func parseImportDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
