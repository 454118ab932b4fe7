package compress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/rs/zerolog/log"
)

// SearchResult is the outcome of a target-size search
type SearchResult struct {
	InputID       string    `json:"inputId"`
	FinalID       string    `json:"finalId"`
	TargetBytes   int64     `json:"targetBytes"`
	AchievedBytes int64     `json:"achievedBytes"`
	Met           bool      `json:"met"`
	Preset        Preset    `json:"preset"`
	Attempts      []Attempt `json:"attempts"`
}

// candidate is a probe artifact that survived its attempt
type candidate struct {
	id     string
	preset Preset
	size   int64
}

type verdict int

const (
	// verdictAccept: the probe fits the budget and ends the search
	verdictAccept verdict = iota
	// verdictKeep: the probe replaces the current best
	verdictKeep
	// verdictDiscard: the probe is no better than the current best
	verdictDiscard
)

// decide is the whole keep-best policy. It has no side effects.
func decide(best *candidate, probe candidate, targetBytes int64) verdict {
	if probe.size <= targetBytes {
		return verdictAccept
	}
	if best == nil || probe.size < best.size {
		return verdictKeep
	}
	return verdictDiscard
}

// MaxTargetKB is the largest budget whose byte value fits in an int64
const MaxTargetKB = math.MaxInt64 / 1024

// TargetBytes converts a KB budget to bytes, saturating at math.MaxInt64
func TargetBytes(targetKB int64) int64 {
	if targetKB > MaxTargetKB {
		return math.MaxInt64
	}
	return targetKB * 1024
}

// ProbePrefix returns the id prefix shared by every probe of one request
func ProbePrefix(token string) string {
	return "probe-" + token + "-"
}

// ProbeID names the probe for one preset of one request
func ProbeID(token string, preset Preset, inputID string) string {
	return ProbePrefix(token) + preset.String() + "-" + inputID
}

// Searcher tries presets in order until one fits a byte budget
type Searcher struct {
	store   storage.ArtifactStore
	invoker *Invoker
	order   []Preset
}

// NewSearcher creates a searcher over SearchOrder
func NewSearcher(store storage.ArtifactStore, invoker *Invoker) *Searcher {
	return &Searcher{
		store:   store,
		invoker: invoker,
		order:   SearchOrder,
	}
}

// Search compresses inputID toward targetKB and leaves exactly one artifact at
// finalID. A budget that cannot be met is not an error: the smallest probe is
// kept and Met is false. Every probe other than the promoted one is removed
// before Search returns.
func (s *Searcher) Search(ctx context.Context, inputID string, targetKB int64, finalID string) (*SearchResult, error) {
	if targetKB <= 0 {
		return nil, fmt.Errorf("%w: target size must be a positive number of KB, got %d", types.ErrInvalidRequest, targetKB)
	}
	if _, err := s.store.Path(finalID); err != nil {
		return nil, err
	}
	exists, err := s.store.Exists(ctx, inputID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrInputNotFound, inputID)
	}

	token := uuid.NewString()
	result := &SearchResult{
		InputID:     inputID,
		FinalID:     finalID,
		TargetBytes: TargetBytes(targetKB),
	}
	logger := log.With().Str("input", inputID).Str("token", token).Int64("target_kb", targetKB).Logger()

	// Probes are cleaned up even if the request context is gone.
	cleanupCtx := context.WithoutCancel(ctx)
	defer s.removeProbes(cleanupCtx, token)

	var best *candidate
	var lastErr error

	for _, preset := range s.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		probeID := ProbeID(token, preset, inputID)
		attempt, err := s.invoker.Compress(ctx, inputID, preset, probeID)
		result.Attempts = append(result.Attempts, *attempt)
		if err != nil {
			if errors.Is(err, types.ErrInputNotFound) {
				return nil, err
			}
			logger.Warn().Err(err).Str("preset", preset.String()).Msg("preset failed, trying next")
			s.discard(cleanupCtx, probeID)
			lastErr = err
			continue
		}

		probe := candidate{id: probeID, preset: preset, size: attempt.SizeBytes}
		switch decide(best, probe, result.TargetBytes) {
		case verdictAccept:
			if err := s.store.Rename(cleanupCtx, probe.id, finalID); err != nil {
				return nil, err
			}
			result.Met = true
			result.Preset = probe.preset
			result.AchievedBytes = probe.size
			logger.Info().
				Str("preset", preset.String()).
				Int64("achieved_bytes", probe.size).
				Msg("target size met")
			return result, nil
		case verdictKeep:
			if best != nil {
				s.discard(cleanupCtx, best.id)
			}
			best = &probe
		case verdictDiscard:
			s.discard(cleanupCtx, probe.id)
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: %d presets tried: %w", types.ErrAllPresetsFailed, len(s.order), lastErr)
	}

	if err := s.store.Rename(cleanupCtx, best.id, finalID); err != nil {
		return nil, err
	}
	result.Preset = best.preset
	result.AchievedBytes = best.size
	logger.Info().
		Str("preset", best.preset.String()).
		Int64("achieved_bytes", best.size).
		Msg("target size not reachable, kept closest result")
	return result, nil
}

func (s *Searcher) discard(ctx context.Context, id string) {
	if err := s.store.Delete(ctx, id); err != nil {
		log.Debug().Err(err).Str("id", id).Msg("failed to discard probe")
	}
}

// removeProbes deletes whatever is left under the request's probe prefix
func (s *Searcher) removeProbes(ctx context.Context, token string) {
	prefix := ProbePrefix(token)
	leftovers, err := s.store.List(ctx, prefix)
	if err != nil {
		log.Debug().Err(err).Str("prefix", prefix).Msg("failed to list probes for cleanup")
		return
	}
	for _, a := range leftovers {
		if strings.HasPrefix(a.ID, prefix) {
			s.discard(ctx, a.ID)
		}
	}
}
