package matching

import (
	"time"

	"github.com/lexfield/regscreen/internal/models"
)

// CorpusSnapshot is an immutable view of the regulation corpus taken at a
// point in time. A screening call observes exactly one snapshot; corpus
// refresh replaces the whole snapshot rather than mutating one in place.
type CorpusSnapshot struct {
	version string
	takenAt time.Time
	records []models.RegulationRecord

	byID      map[string]*models.RegulationRecord
	amends    map[string][]string
	amendedBy map[string][]string
}

// NewCorpusSnapshot copies the given records into a snapshot and builds
// the id index and the amendment adjacency lists once. The amendment
// graph is provenance only; the engine never walks it while scoring.
func NewCorpusSnapshot(version string, takenAt time.Time, records []models.RegulationRecord) *CorpusSnapshot {
	s := &CorpusSnapshot{
		version:   version,
		takenAt:   takenAt,
		records:   make([]models.RegulationRecord, len(records)),
		byID:      make(map[string]*models.RegulationRecord, len(records)),
		amends:    make(map[string][]string),
		amendedBy: make(map[string][]string),
	}
	copy(s.records, records)

	for i := range s.records {
		rec := &s.records[i]
		s.byID[rec.ID] = rec
		if len(rec.Amends) > 0 {
			s.amends[rec.ID] = append(s.amends[rec.ID], rec.Amends...)
		}
		for _, amended := range rec.Amends {
			s.amendedBy[amended] = append(s.amendedBy[amended], rec.ID)
		}
		for _, amender := range rec.AmendedBy {
			s.amendedBy[rec.ID] = appendUnique(s.amendedBy[rec.ID], amender)
		}
	}
	return s
}

// Version identifies the corpus state this snapshot was taken from
func (s *CorpusSnapshot) Version() string { return s.version }

// TakenAt returns when the snapshot was materialized
func (s *CorpusSnapshot) TakenAt() time.Time { return s.takenAt }

// Len returns the number of records in the snapshot
func (s *CorpusSnapshot) Len() int { return len(s.records) }

// Records returns the snapshot's records. Callers must treat the slice
// and its elements as read-only.
func (s *CorpusSnapshot) Records() []models.RegulationRecord { return s.records }

// Record looks a record up by id
func (s *CorpusSnapshot) Record(id string) (*models.RegulationRecord, bool) {
	rec, ok := s.byID[id]
	return rec, ok
}

// Amends returns the ids a record amends
func (s *CorpusSnapshot) Amends(id string) []string { return s.amends[id] }

// AmendedBy returns the ids of records amending the given record
func (s *CorpusSnapshot) AmendedBy(id string) []string { return s.amendedBy[id] }

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
