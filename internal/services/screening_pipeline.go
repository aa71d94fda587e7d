package services

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexfield/regscreen/internal/errors"
	"github.com/lexfield/regscreen/internal/logger"
	"github.com/lexfield/regscreen/internal/repository"
	"github.com/lexfield/regscreen/pkg/config"
)

// maxCycleErrors caps how many per-organization errors one cycle retains
const maxCycleErrors = 10

// ScreeningPipeline periodically rescreens organizations whose persisted
// results have gone stale, either because the profile changed or because
// they have never been screened at all.
type ScreeningPipeline struct {
	repos     *repository.Repositories
	screening ScreeningService
	logger    logger.Logger

	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex

	lastCycle *PipelineStats
}

// NewScreeningPipeline creates a new screening pipeline
func NewScreeningPipeline(repos *repository.Repositories, screening ScreeningService) *ScreeningPipeline {
	return &ScreeningPipeline{
		repos:     repos,
		screening: screening,
		logger:    logger.NewComponentLogger("pipeline"),
	}
}

// PipelineConfig contains configuration for the screening pipeline
type PipelineConfig struct {
	BatchSize     int           `json:"batch_size"`
	Interval      time.Duration `json:"interval"`
	MaxConcurrent int           `json:"max_concurrent"`
	StaleAfter    time.Duration `json:"stale_after"`
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BatchSize:     50,
		Interval:      6 * time.Hour,
		MaxConcurrent: 4,
		StaleAfter:    24 * time.Hour,
	}
}

// PipelineConfigFromApp builds a pipeline config from the application config
func PipelineConfigFromApp(cfg *config.Config) PipelineConfig {
	return PipelineConfig{
		BatchSize:     cfg.PipelineBatchSize,
		Interval:      cfg.PipelineInterval,
		MaxConcurrent: cfg.PipelineMaxConcurrent,
		StaleAfter:    cfg.StaleAfter,
	}
}

// normalize replaces zero or negative settings with the defaults
func (c PipelineConfig) normalize() PipelineConfig {
	defaults := DefaultPipelineConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaults.MaxConcurrent
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	return c
}

// Start begins the automated screening loop
func (p *ScreeningPipeline) Start(cfg PipelineConfig) error {
	cfg = cfg.normalize()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("pipeline is already running")
	}

	p.isRunning = true
	p.stopChan = make(chan struct{})

	p.wg.Add(1)
	go p.runLoop(cfg, p.stopChan)

	p.logger.Info("Screening pipeline started",
		"batch_size", cfg.BatchSize,
		"interval", cfg.Interval.String(),
		"max_concurrent", cfg.MaxConcurrent,
		"stale_after", cfg.StaleAfter.String())
	return nil
}

// Stop gracefully stops the screening loop, waiting for an in-flight
// cycle to finish. The wait happens outside the lock so the loop can
// still record its final cycle stats.
func (p *ScreeningPipeline) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("pipeline is not running")
	}
	close(p.stopChan)
	p.isRunning = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Screening pipeline stopped")
	return nil
}

// IsRunning returns whether the pipeline loop is currently active
func (p *ScreeningPipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// RunOnce executes a single screening cycle manually
func (p *ScreeningPipeline) RunOnce(cfg PipelineConfig) (*PipelineStats, error) {
	stats, err := p.executeCycle(cfg.normalize())
	if stats != nil {
		p.setLastCycle(stats)
	}
	return stats, err
}

// runLoop is the main pipeline loop: one cycle immediately, then one per
// interval until stopped. The stop channel is passed in because Start may
// replace the field on a later restart.
func (p *ScreeningPipeline) runLoop(cfg PipelineConfig, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	p.cycle(cfg)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.cycle(cfg)
		}
	}
}

// cycle runs one screening cycle and logs its outcome
func (p *ScreeningPipeline) cycle(cfg PipelineConfig) {
	stats, err := p.executeCycle(cfg)
	if stats != nil {
		p.setLastCycle(stats)
	}
	if err != nil {
		p.logger.Error("Screening cycle failed", err)
		return
	}
	p.logger.Info("Screening cycle completed", "summary", stats.Summary())
}

// executeCycle performs one complete screening cycle: pull the stale work
// queue, rescreen each organization with bounded concurrency, account the
// outcomes. Per-organization failures never abort the cycle.
func (p *ScreeningPipeline) executeCycle(cfg PipelineConfig) (*PipelineStats, error) {
	stats := &PipelineStats{
		StartTime: time.Now().UTC(),
		BatchSize: cfg.BatchSize,
	}

	// Pull more than one batch so a head of permanently unscreenable
	// profiles cannot starve the screenable ones behind them.
	cutoff := stats.StartTime.Add(-cfg.StaleAfter)
	organizations, err := p.repos.Organization.GetStale(cutoff, cfg.BatchSize*10)
	if err != nil {
		stats.finish()
		return stats, fmt.Errorf("failed to get stale organizations: %w", err)
	}

	stats.OrganizationsFound = len(organizations)
	if len(organizations) == 0 {
		stats.finish()
		return stats, nil
	}

	var g errgroup.Group
	g.SetLimit(cfg.MaxConcurrent)
	var mu sync.Mutex

	for _, org := range organizations {
		org := org
		g.Go(func() error {
			results, err := p.screening.ScreenOrganization(org.ID, time.Now().UTC())

			mu.Lock()
			defer mu.Unlock()
			stats.OrganizationsProcessed++
			switch {
			case err == nil:
				stats.OrganizationsSucceeded++
				stats.MatchesWritten += len(results)
			case errors.HasCode(err, errors.ErrCodeInvalidProfile):
				// Unscreenable profiles stay in the queue until their
				// owners fill in a sector or a jurisdiction.
				stats.OrganizationsSkipped++
			default:
				stats.OrganizationsFailed++
				stats.recordError(fmt.Sprintf("organization %s: %v", org.ID, err))
				p.logger.Error("Failed to screen organization", err, "organization_id", org.ID.String())
			}
			return nil
		})
	}

	// Workers only report through stats, so this never returns an error.
	_ = g.Wait()

	stats.finish()
	return stats, nil
}

// GetStats returns the current pipeline status, including corpus and
// work-queue counts. The stale cutoff mirrors what the next cycle would
// use.
func (p *ScreeningPipeline) GetStats(staleAfter time.Duration) (PipelineStatus, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultPipelineConfig().StaleAfter
	}

	status := PipelineStatus{
		IsRunning: p.IsRunning(),
		LastCycle: p.LastCycle(),
		Timestamp: time.Now().UTC(),
	}

	total, err := p.repos.Organization.Count()
	if err != nil {
		return status, err
	}

	stale, err := p.repos.Organization.StaleCount(time.Now().UTC().Add(-staleAfter))
	if err != nil {
		return status, err
	}

	regulations, err := p.repos.Regulation.Count()
	if err != nil {
		return status, err
	}

	status.TotalOrganizations = total
	status.StaleOrganizations = stale
	status.TotalRegulations = regulations
	return status, nil
}

// LastCycle returns the stats of the most recently completed cycle
func (p *ScreeningPipeline) LastCycle() *PipelineStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastCycle
}

func (p *ScreeningPipeline) setLastCycle(stats *PipelineStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCycle = stats
}

// PipelineStats accounts one screening cycle
type PipelineStats struct {
	StartTime              time.Time     `json:"start_time"`
	EndTime                time.Time     `json:"end_time"`
	Duration               time.Duration `json:"duration"`
	BatchSize              int           `json:"batch_size"`
	OrganizationsFound     int           `json:"organizations_found"`
	OrganizationsProcessed int           `json:"organizations_processed"`
	OrganizationsSucceeded int           `json:"organizations_succeeded"`
	OrganizationsSkipped   int           `json:"organizations_skipped"`
	OrganizationsFailed    int           `json:"organizations_failed"`
	MatchesWritten         int           `json:"matches_written"`
	Errors                 []string      `json:"errors,omitempty"`
}

func (s *PipelineStats) finish() {
	s.EndTime = time.Now().UTC()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// recordError keeps the first few failure messages; the counters carry
// the rest.
func (s *PipelineStats) recordError(msg string) {
	if len(s.Errors) < maxCycleErrors {
		s.Errors = append(s.Errors, msg)
	}
}

func (s *PipelineStats) Summary() string {
	return fmt.Sprintf("processed=%d, succeeded=%d, skipped=%d, failed=%d, matches=%d, duration=%v",
		s.OrganizationsProcessed, s.OrganizationsSucceeded, s.OrganizationsSkipped,
		s.OrganizationsFailed, s.MatchesWritten, s.Duration.Round(time.Millisecond))
}

// PipelineStatus is the externally visible pipeline state
type PipelineStatus struct {
	IsRunning          bool           `json:"is_running"`
	TotalOrganizations int            `json:"total_organizations"`
	StaleOrganizations int            `json:"stale_organizations"`
	TotalRegulations   int            `json:"total_regulations"`
	LastCycle          *PipelineStats `json:"last_cycle,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}
