// Package feedsync periodically pulls iCalendar feeds and hands their
// occurrences to an importer.
package feedsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/calendar"
	"github.com/carecal/carecal/internal/platform/ical"
)

// Importer stores the occurrences decoded from one feed.
type Importer interface {
	Import(ctx context.Context, source string, occs []ical.Occurrence) error
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context, source string, occs []ical.Occurrence) error

func (f ImporterFunc) Import(ctx context.Context, source string, occs []ical.Occurrence) error {
	return f(ctx, source, occs)
}

type Config struct {
	URLs []string
	// Schedule is a standard five-field cron spec.
	Schedule string
	Location *time.Location
	// PastDays and FutureDays bound the expansion around today.
	PastDays   int
	FutureDays int
	Timeout    time.Duration
	// OnResult, when set, sees every feed result of a SyncAll run.
	OnResult func(Result)
}

// Result reports one feed of a sync run.
type Result struct {
	URL         string
	Occurrences int
	Skipped     int
	FromCache   bool
	Err         error
}

type Syncer struct {
	cfg      Config
	fetcher  *ical.Fetcher
	importer Importer
	logger   zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron

	// busy is held by the one sync that may run at a time.
	busy     sync.Mutex
	inflight sync.WaitGroup
	base     context.Context
	cancel   context.CancelFunc
}

func New(cfg Config, fetcher *ical.Fetcher, importer Importer, logger zerolog.Logger) (*Syncer, error) {
	if cfg.Schedule == "" {
		return nil, errors.New("feed sync schedule is required")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse feed sync schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PastDays <= 0 {
		cfg.PastDays = 7
	}
	if cfg.FutureDays <= 0 {
		cfg.FutureDays = 90
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &Syncer{
		cfg:      cfg,
		fetcher:  fetcher,
		importer: importer,
		logger:   logger.With().Str("component", "feedsync").Logger(),
		now:      time.Now,
		base:     base,
		cancel:   cancel,
	}, nil
}

// Start schedules SyncAll. Scheduled runs and RunNow share one guard, so runs
// never overlap; a run that finds another still busy is skipped.
func (s *Syncer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("feed sync already started")
	}
	c := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.run() }); err != nil {
		return fmt.Errorf("schedule feed sync: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info().Str("schedule", s.cfg.Schedule).Int("feeds", len(s.cfg.URLs)).Msg("feed sync scheduled")
	return nil
}

// RunNow starts one sync in the background, outside the schedule. Stop waits
// for it.
func (s *Syncer) RunNow() {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.run()
	}()
}

// run performs one SyncAll bounded by the configured timeout. It reports false
// when another run held the guard.
func (s *Syncer) run() bool {
	if !s.busy.TryLock() {
		s.logger.Info().Msg("feed sync still running, skipping")
		return false
	}
	defer s.busy.Unlock()
	ctx, cancel := context.WithTimeout(s.base, s.cfg.Timeout)
	defer cancel()
	s.SyncAll(ctx)
	return true
}

// Stop unschedules the syncer and waits for running syncs, bounded by ctx.
// When ctx ends first the running sync is cancelled.
func (s *Syncer) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if c != nil {
			<-c.Stop().Done()
		}
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("feed sync still running at shutdown")
		s.cancel()
	}
}

// Range returns the expansion window for a run at now.
func (s *Syncer) Range(now time.Time) (time.Time, time.Time) {
	today := calendar.StartOfDay(now.In(s.cfg.Location))
	return today.AddDate(0, 0, -s.cfg.PastDays), today.AddDate(0, 0, s.cfg.FutureDays)
}

// SyncAll syncs every configured feed. One failing feed does not stop the
// others.
func (s *Syncer) SyncAll(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.cfg.URLs))
	for _, url := range s.cfg.URLs {
		res := s.SyncOne(ctx, url)
		ev := s.logger.Info()
		if res.Err != nil {
			ev = s.logger.Error().Err(res.Err)
		}
		ev.Str("url", ical.RedactURL(url)).
			Int("occurrences", res.Occurrences).
			Int("skipped", res.Skipped).
			Bool("from_cache", res.FromCache).
			Msg("feed synced")
		if s.cfg.OnResult != nil {
			s.cfg.OnResult(res)
		}
		results = append(results, res)
	}
	return results
}

// SyncOne fetches, decodes and imports a single feed.
func (s *Syncer) SyncOne(ctx context.Context, url string) Result {
	res := Result{URL: url}
	fetched, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		res.Err = err
		return res
	}
	res.FromCache = fetched.FromCache

	from, to := s.Range(s.now())
	decoded, err := ical.Decode(bytes.NewReader(fetched.Body), ical.DecodeOptions{
		From:     from,
		To:       to,
		Location: s.cfg.Location,
	})
	if err != nil {
		res.Err = fmt.Errorf("decode %s: %w", ical.RedactURL(url), err)
		return res
	}
	res.Occurrences = len(decoded.Occurrences)
	res.Skipped = decoded.Skipped
	for _, uid := range decoded.Truncated {
		s.logger.Warn().Str("uid", uid).Str("url", ical.RedactURL(url)).Msg("recurrence expansion truncated")
	}

	if err := s.importer.Import(ctx, url, decoded.Occurrences); err != nil {
		res.Err = fmt.Errorf("import %s: %w", ical.RedactURL(url), err)
	}
	return res
}
