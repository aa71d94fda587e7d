package matching

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/models"
)

// Engine is the applicability matching engine: filter pipeline, scoring,
// confidence rating and similarity matching over one set of lookup
// tables. An Engine is immutable after construction and safe for
// unbounded concurrent use; Screen is a pure function of its arguments.
type Engine struct {
	tables     *Tables
	weights    Weights
	scorer     *Scorer
	filter     *FilterPipeline
	confidence *ConfidenceScorer
	similarity *SimilarityMatcher

	simWeights   SimilarityWeights
	simThreshold float64
	simLimit     int
	tokenSalt    []byte

	correctionRates map[string]float64
}

// EngineOption customizes engine construction
type EngineOption func(*Engine)

// WithTables replaces the built-in lookup tables
func WithTables(tables *Tables) EngineOption {
	return func(e *Engine) { e.tables = tables }
}

// WithWeights replaces the applicability score weighting
func WithWeights(weights Weights) EngineOption {
	return func(e *Engine) { e.weights = weights }
}

// WithSimilarityWeights replaces the similarity weighting
func WithSimilarityWeights(weights SimilarityWeights) EngineOption {
	return func(e *Engine) { e.simWeights = weights }
}

// WithSimilarityThreshold sets the minimum accepted similarity score
func WithSimilarityThreshold(threshold float64) EngineOption {
	return func(e *Engine) { e.simThreshold = threshold }
}

// WithSimilarityLimit caps the number of similarity matches returned
func WithSimilarityLimit(limit int) EngineOption {
	return func(e *Engine) { e.simLimit = limit }
}

// WithTokenSalt keys the anonymized org tokens in similarity output
func WithTokenSalt(salt []byte) EngineOption {
	return func(e *Engine) { e.tokenSalt = salt }
}

// WithCorrectionRates supplies historical professional-correction rates
// per regulation family, recorded by review feedback outside this core.
func WithCorrectionRates(rates map[string]float64) EngineOption {
	return func(e *Engine) {
		copied := make(map[string]float64, len(rates))
		for family, rate := range rates {
			copied[strings.ToLower(family)] = rate
		}
		e.correctionRates = copied
	}
}

// NewEngine builds an engine, validating tables and weights
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		tables:       DefaultTables(),
		weights:      DefaultWeights(),
		simWeights:   DefaultSimilarityWeights(),
		simThreshold: defaultSimilarityThreshold,
		simLimit:     defaultSimilarityLimit,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.tables == nil {
		return nil, fmt.Errorf("engine requires lookup tables")
	}
	if err := e.tables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tables: %w", err)
	}

	scorer, err := NewScorer(e.tables, e.weights)
	if err != nil {
		return nil, err
	}
	similarity, err := NewSimilarityMatcher(e.tables, e.simWeights, e.simThreshold, e.simLimit, e.tokenSalt)
	if err != nil {
		return nil, err
	}

	e.scorer = scorer
	e.similarity = similarity
	e.filter = NewFilterPipeline(e.tables)
	e.confidence = NewConfidenceScorer()
	return e, nil
}

// Tables returns the engine's lookup tables
func (e *Engine) Tables() *Tables { return e.tables }

// Screen runs the full pipeline for one organization against one corpus
// snapshot as of the given instant: filter, score, rate confidence, rank.
// The result is deterministic for identical inputs. Individual malformed
// records degrade to a defensive full-width confidence band; only a
// missing snapshot or an unscreenable profile produce errors.
func (e *Engine) Screen(profile *models.OrganizationProfile, snap *CorpusSnapshot, now time.Time) ([]models.MatchResult, error) {
	if snap == nil {
		return nil, errors.CorpusUnavailable("no corpus snapshot supplied", nil).WithOperation("Screen")
	}
	if profile == nil {
		return nil, errors.InvalidProfile("profile is nil", nil).WithOperation("Screen")
	}
	if !profile.Screenable() {
		return nil, errors.InvalidProfile("profile declares no sector and no jurisdiction", nil).
			WithOperation("Screen").
			WithDetails(fmt.Sprintf("organization %s", profile.ID))
	}

	completeness := profile.Completeness()
	missing := missingDimensions(profile)
	profileValid := profile.Validate() == nil

	candidates := e.filter.Run(profile, snap, now)

	type scored struct {
		result  models.MatchResult
		recency time.Time
	}
	ranked := make([]scored, 0, len(candidates))
	for _, rec := range candidates {
		breakdown := e.scorer.Score(profile, rec)
		composite := e.weights.Composite(breakdown)

		var band models.ConfidenceBand
		if !profileValid || rec.Validate() != nil {
			band = e.confidence.Widest()
		} else {
			rate := e.correctionRates[strings.ToLower(strings.TrimSpace(rec.Family))]
			band = e.confidence.Rate(composite, completeness, breakdown, missing, rate)
		}

		ranked = append(ranked, scored{
			result: models.MatchResult{
				RegulationID: rec.ID,
				Title:        rec.Title,
				Family:       rec.Family,
				Composite:    composite,
				Breakdown:    breakdown,
				Confidence:   band,
				ScreenedAt:   now,
			},
			recency: rec.RecencyDate(),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].result.Composite != ranked[j].result.Composite {
			return ranked[i].result.Composite > ranked[j].result.Composite
		}
		if !ranked[i].recency.Equal(ranked[j].recency) {
			return ranked[i].recency.After(ranked[j].recency)
		}
		return ranked[i].result.RegulationID < ranked[j].result.RegulationID
	})

	results := make([]models.MatchResult, len(ranked))
	for i, s := range ranked {
		results[i] = s.result
	}
	return results, nil
}

// FindSimilar returns up to the configured limit of anonymized similar
// organizations for the profile. Pure read-side: no corpus access, no
// writes, never blocked by concurrent screening.
func (e *Engine) FindSimilar(profile *models.OrganizationProfile, candidates []SimilarityCandidate) []models.SimilarityMatch {
	return e.similarity.FindSimilar(profile, candidates)
}

// missingDimensions counts the scoring dimensions the profile carries no
// data for; each widens the confidence interval.
func missingDimensions(p *models.OrganizationProfile) int {
	missing := 0
	if p.EmployeeCount == nil {
		missing++
	}
	if len(p.Activities) == 0 {
		missing++
	}
	if len(p.Roles) == 0 {
		missing++
	}
	return missing
}
