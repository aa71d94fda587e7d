package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/lexfield/regscreen/internal/matching"
)

const (
	snapshotKey   = "corpus-snapshot"
	candidatesKey = "similarity-candidates"
)

// Store caches the expensive read-side assemblies: the current corpus
// snapshot and the similarity candidate set. Entries expire on TTL;
// writers invalidate explicitly after corpus or result changes.
type Store struct {
	cache *gocache.Cache
}

// New creates a store with the given default TTL
func New(defaultTTL, cleanupInterval time.Duration) *Store {
	return &Store{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Snapshot returns the cached corpus snapshot if present
func (s *Store) Snapshot() (*matching.CorpusSnapshot, bool) {
	if val, found := s.cache.Get(snapshotKey); found {
		return val.(*matching.CorpusSnapshot), true
	}
	return nil, false
}

// SetSnapshot caches the corpus snapshot for the default TTL
func (s *Store) SetSnapshot(snap *matching.CorpusSnapshot) {
	s.cache.Set(snapshotKey, snap, gocache.DefaultExpiration)
}

// InvalidateSnapshot drops the cached snapshot so the next screening call
// rebuilds it from the store.
func (s *Store) InvalidateSnapshot() {
	s.cache.Delete(snapshotKey)
}

// SimilarityCandidates returns the cached candidate set if present
func (s *Store) SimilarityCandidates() ([]matching.SimilarityCandidate, bool) {
	if val, found := s.cache.Get(candidatesKey); found {
		return val.([]matching.SimilarityCandidate), true
	}
	return nil, false
}

// SetSimilarityCandidates caches the assembled candidate set
func (s *Store) SetSimilarityCandidates(candidates []matching.SimilarityCandidate) {
	s.cache.Set(candidatesKey, candidates, gocache.DefaultExpiration)
}

// InvalidateSimilarityCandidates drops the cached candidate set
func (s *Store) InvalidateSimilarityCandidates() {
	s.cache.Delete(candidatesKey)
}

// Flush clears everything
func (s *Store) Flush() {
	s.cache.Flush()
}
