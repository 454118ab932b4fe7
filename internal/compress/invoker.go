package compress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single engine run
const DefaultTimeout = 2 * time.Minute

// Attempt is the outcome of one engine run. It is never persisted.
type Attempt struct {
	InputID   string        `json:"inputId"`
	Preset    Preset        `json:"preset"`
	OutputID  string        `json:"outputId"`
	SizeBytes int64         `json:"sizeBytes"`
	Succeeded bool          `json:"succeeded"`
	Duration  time.Duration `json:"duration"`
}

// AttemptObserver is told about every engine run
type AttemptObserver interface {
	ObserveAttempt(preset string, succeeded bool, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveAttempt(string, bool, time.Duration) {}

// Invoker runs the engine against artifacts of a store. It does not retry and
// does not remove partial output on failure.
type Invoker struct {
	store    storage.ArtifactStore
	engine   Engine
	timeout  time.Duration
	observer AttemptObserver
}

// NewInvoker creates an invoker; a non-positive timeout selects DefaultTimeout
func NewInvoker(store storage.ArtifactStore, engine Engine, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{
		store:    store,
		engine:   engine,
		timeout:  timeout,
		observer: noopObserver{},
	}
}

// WithObserver sets the attempt observer and returns the invoker
func (inv *Invoker) WithObserver(o AttemptObserver) *Invoker {
	if o != nil {
		inv.observer = o
	}
	return inv
}

// Compress runs preset over inputID into outputID. Success requires a clean
// engine exit and an artifact present at outputID.
func (inv *Invoker) Compress(ctx context.Context, inputID string, preset Preset, outputID string) (*Attempt, error) {
	attempt := &Attempt{InputID: inputID, Preset: preset, OutputID: outputID}

	if !preset.Valid() {
		return attempt, fmt.Errorf("%w: unknown quality preset %q", types.ErrInvalidRequest, preset)
	}

	inputPath, err := inv.store.Path(inputID)
	if err != nil {
		return attempt, err
	}
	outputPath, err := inv.store.Path(outputID)
	if err != nil {
		return attempt, err
	}

	exists, err := inv.store.Exists(ctx, inputID)
	if err != nil {
		return attempt, err
	}
	if !exists {
		return attempt, fmt.Errorf("%w: %s", types.ErrInputNotFound, inputID)
	}

	runCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	start := time.Now()
	runErr := inv.engine.Compress(runCtx, preset, inputPath, outputPath)
	attempt.Duration = time.Since(start)

	if runErr == nil {
		runErr = runCtx.Err()
	}
	if runErr != nil {
		inv.observer.ObserveAttempt(preset.String(), false, attempt.Duration)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return attempt, fmt.Errorf("%w: %w after %s", types.ErrCompressionFailed, types.ErrTimeout, inv.timeout)
		}
		return attempt, fmt.Errorf("%w: %w", types.ErrCompressionFailed, runErr)
	}

	size, err := inv.store.Size(ctx, outputID)
	if err != nil {
		inv.observer.ObserveAttempt(preset.String(), false, attempt.Duration)
		if errors.Is(err, types.ErrNotFound) {
			return attempt, fmt.Errorf("%w: engine exited cleanly but wrote no output", types.ErrCompressionFailed)
		}
		return attempt, err
	}

	attempt.SizeBytes = size
	attempt.Succeeded = true
	inv.observer.ObserveAttempt(preset.String(), true, attempt.Duration)

	log.Debug().
		Str("input", inputID).
		Str("preset", preset.String()).
		Str("output", outputID).
		Int64("size", size).
		Dur("duration", attempt.Duration).
		Msg("compression attempt succeeded")

	return attempt, nil
}
