package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel stat/delete calls within one sweep
const DefaultConcurrency = 8

// Report summarises one sweep
type Report struct {
	Deleted int           `json:"deletedFiles"`
	Errors  int           `json:"errors"`
	Total   int           `json:"totalFiles"`
	MaxAge  time.Duration `json:"-"`
}

// Observer is told about every completed sweep
type Observer interface {
	ObserveSweep(deleted, errors int)
}

type noopObserver struct{}

func (noopObserver) ObserveSweep(int, int) {}

type outcome int

const (
	outcomeKept outcome = iota
	outcomeDeleted
	outcomeFailed
)

// Sweeper deletes artifacts older than a threshold. It only talks to the store.
type Sweeper struct {
	store       storage.ArtifactStore
	concurrency int
	observer    Observer
}

// NewSweeper creates a sweeper; a non-positive concurrency selects DefaultConcurrency
func NewSweeper(store storage.ArtifactStore, concurrency int) *Sweeper {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Sweeper{
		store:       store,
		concurrency: concurrency,
		observer:    noopObserver{},
	}
}

// WithObserver sets the sweep observer and returns the sweeper
func (s *Sweeper) WithObserver(o Observer) *Sweeper {
	if o != nil {
		s.observer = o
	}
	return s
}

// Sweep deletes every artifact last modified more than maxAge before now.
// Failures on one artifact are counted and never stop the others.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (*Report, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("%w: retention threshold must be positive, got %s", types.ErrInvalidRequest, maxAge)
	}

	artifacts, err := s.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	outcomes := make([]outcome, len(artifacts))
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, a := range artifacts {
		g.Go(func() error {
			outcomes[i] = s.sweepOne(ctx, a.ID, now, maxAge)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Total: len(artifacts), MaxAge: maxAge}
	for _, o := range outcomes {
		switch o {
		case outcomeDeleted:
			report.Deleted++
		case outcomeFailed:
			report.Errors++
		}
	}
	s.observer.ObserveSweep(report.Deleted, report.Errors)

	return report, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, id string, now time.Time, maxAge time.Duration) outcome {
	// Re-stat: the listing may be stale by the time this artifact is reached.
	artifact, err := s.store.Stat(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return outcomeKept
		}
		log.Warn().Err(err).Str("id", id).Msg("failed to stat artifact during sweep")
		return outcomeFailed
	}

	if now.Sub(artifact.ModifiedAt) <= maxAge {
		return outcomeKept
	}

	if err := s.store.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to delete expired artifact")
		return outcomeFailed
	}

	log.Info().
		Str("id", id).
		Time("modified_at", artifact.ModifiedAt).
		Dur("age", now.Sub(artifact.ModifiedAt)).
		Msg("expired artifact deleted")
	return outcomeDeleted
}

// Run sweeps every interval until ctx is done. It never returns a report;
// outcomes are logged.
func (s *Sweeper) Run(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: cleanup interval must be positive, got %s", types.ErrInvalidRequest, interval)
	}
	if maxAge <= 0 {
		return fmt.Errorf("%w: retention threshold must be positive, got %s", types.ErrInvalidRequest, maxAge)
	}

	log.Info().Dur("interval", interval).Dur("max_age", maxAge).Msg("periodic cleanup started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("periodic cleanup stopped")
			return ctx.Err()
		case now := <-ticker.C:
			report, err := s.Sweep(ctx, now, maxAge)
			if err != nil {
				log.Error().Err(err).Msg("periodic cleanup failed")
				continue
			}
			log.Info().
				Int("deleted", report.Deleted).
				Int("errors", report.Errors).
				Int("total", report.Total).
				Msg("periodic cleanup complete")
		}
	}
}
