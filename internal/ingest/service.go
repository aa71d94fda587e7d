package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lexfield/regscreen/internal/cache"
	"github.com/lexfield/regscreen/internal/logger"
	"github.com/lexfield/regscreen/internal/repository"
	"github.com/lexfield/regscreen/pkg/config"
)

// maxSyncErrors caps how many per-entry errors one sync retains
const maxSyncErrors = 10

const defaultMaxPages = 5

// SyncJob describes one register query to sync into the corpus. The
// family is ours, not the register's: each job binds a register
// subject heading to the corpus family its records belong to.
type SyncJob struct {
	Subject  string `json:"subject"`
	Family   string `json:"family"`
	DocType  string `json:"doc_type,omitempty"`
	Year     int    `json:"year,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
}

func (j SyncJob) normalize() SyncJob {
	if j.MaxPages <= 0 {
		j.MaxPages = defaultMaxPages
	}
	return j
}

// searchPath builds the register search path for a job
func searchPath(job SyncJob) string {
	v := url.Values{}
	if job.Subject != "" {
		v.Set("subject", job.Subject)
	}
	if job.DocType != "" {
		v.Set("type", job.DocType)
	}
	if job.Year > 0 {
		v.Set("year", strconv.Itoa(job.Year))
	}
	if len(v) == 0 {
		return "/all"
	}
	return "/all?" + v.Encode()
}

// Service syncs the public legislation register into the corpus
type Service struct {
	client      *Client
	parser      *Parser
	transformer *Transformer
	regulations repository.RegulationRepository
	store       *cache.Store
	monitor     *FeedMonitor
	logger      logger.Logger
}

// NewService creates a register sync service. The cache store is
// optional: the one-shot sync binary runs without one and relies on
// the corpus version check to propagate changes to running servers.
func NewService(cfg *config.Config, regulations repository.RegulationRepository, store *cache.Store) *Service {
	return &Service{
		client:      NewClient(cfg),
		parser:      NewParser(),
		transformer: NewTransformer(),
		regulations: regulations,
		store:       store,
		monitor:     NewFeedMonitor(),
		logger:      logger.NewComponentLogger("ingest"),
	}
}

// SyncStats accounts one register sync
type SyncStats struct {
	Subject      string        `json:"subject,omitempty"`
	Family       string        `json:"family,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	PagesFetched int           `json:"pages_fetched"`
	EntriesFound int           `json:"entries_found"`
	Upserted     int           `json:"upserted"`
	Skipped      int           `json:"skipped"`
	Errors       []string      `json:"errors,omitempty"`
}

func (s *SyncStats) finish() {
	s.EndTime = time.Now().UTC()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

func (s *SyncStats) recordError(msg string) {
	if len(s.Errors) < maxSyncErrors {
		s.Errors = append(s.Errors, msg)
	}
}

func (s *SyncStats) Summary() string {
	return fmt.Sprintf("pages=%d, entries=%d, upserted=%d, skipped=%d, duration=%v",
		s.PagesFetched, s.EntriesFound, s.Upserted, s.Skipped, s.Duration.Round(time.Millisecond))
}

// Sync pulls every results page for the job, fetches each entry's
// detail page and upserts the transformed records. Entry-level failures
// are counted and skipped; a failed results page aborts the job and
// returns the partial stats alongside the error.
func (s *Service) Sync(ctx context.Context, job SyncJob) (*SyncStats, error) {
	job = job.normalize()
	stats := &SyncStats{
		Subject:   job.Subject,
		Family:    job.Family,
		StartTime: time.Now().UTC(),
	}

	s.logger.Info("Starting register sync", "subject", job.Subject, "family", job.Family)

	path := searchPath(job)
	for page := 1; page <= job.MaxPages; page++ {
		doc, err := s.client.Get(ctx, path)
		if err != nil {
			s.monitor.RecordFailure(path, err)
			stats.recordError(fmt.Sprintf("page %d: %v", page, err))
			stats.finish()
			return stats, fmt.Errorf("failed to fetch results page %d: %w", page, err)
		}
		s.monitor.RecordSuccess()
		stats.PagesFetched++

		entries := s.parser.ParseSearchResults(doc)
		stats.EntriesFound += len(entries)

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				stats.finish()
				return stats, err
			}
			if err := s.syncEntry(ctx, entry, job.Family); err != nil {
				stats.Skipped++
				stats.recordError(fmt.Sprintf("%s: %v", entry.ID, err))
				s.logger.Warn("Skipping register entry", "id", entry.ID, "error", err.Error())
				continue
			}
			stats.Upserted++
		}

		next, ok := s.parser.NextPagePath(doc)
		if !ok {
			break
		}
		path = normalizePath(next)
	}

	if s.store != nil && stats.Upserted > 0 {
		s.store.InvalidateSnapshot()
	}

	stats.finish()
	s.logger.Info("Register sync completed", "summary", stats.Summary())
	return stats, nil
}

// SyncAll runs each job in sequence, aggregating the stats. Jobs after
// a failed one still run; the first error is returned.
func (s *Service) SyncAll(ctx context.Context, jobs []SyncJob) (*SyncStats, error) {
	total := &SyncStats{StartTime: time.Now().UTC()}

	var firstErr error
	for _, job := range jobs {
		stats, err := s.Sync(ctx, job)
		total.PagesFetched += stats.PagesFetched
		total.EntriesFound += stats.EntriesFound
		total.Upserted += stats.Upserted
		total.Skipped += stats.Skipped
		for _, msg := range stats.Errors {
			total.recordError(msg)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}

	total.finish()
	return total, firstErr
}

// syncEntry fetches an entry's detail page, transforms and upserts the
// record. A failed detail fetch degrades to register defaults instead
// of losing the entry.
func (s *Service) syncEntry(ctx context.Context, entry RegisterEntry, family string) error {
	var detail map[string]interface{}
	doc, err := s.client.Get(ctx, entry.Href)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.monitor.RecordFailure(entry.Href, err)
		s.logger.Warn("Detail page unavailable, using register defaults", "id", entry.ID, "error", err.Error())
	} else {
		s.monitor.RecordSuccess()
		detail = s.parser.ParseRecordPage(doc)
	}

	rec, err := s.transformer.ToRecord(entry, detail, family)
	if err != nil {
		return err
	}
	return s.regulations.Upsert(rec)
}

// Health checks register reachability and recent fetch outcomes
func (s *Service) Health(ctx context.Context) error {
	if err := s.client.Health(ctx); err != nil {
		s.monitor.RecordFailure("/", err)
		return fmt.Errorf("register health check failed: %w", err)
	}
	s.monitor.RecordSuccess()

	if health := s.monitor.Status(); !health.Healthy {
		return fmt.Errorf("register feed unhealthy: %v", health.Issues)
	}
	return nil
}

// FeedHealth returns the monitor's current view of the feed
func (s *Service) FeedHealth() FeedHealth {
	return s.monitor.Status()
}

// ResetFeedHealth clears the monitor, typically after a register outage
// has been resolved
func (s *Service) ResetFeedHealth() {
	s.monitor.Reset()
}

// Close releases the HTTP client resources
func (s *Service) Close() {
	s.client.Close()
}

// normalizePath reduces a register link to a path the client can fetch
func normalizePath(href string) string {
	if u, err := url.Parse(href); err == nil && u.Host != "" {
		return u.RequestURI()
	}
	return href
}
