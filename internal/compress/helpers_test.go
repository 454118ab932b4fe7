package compress

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/stretchr/testify/require"
)

const kb = 1024

// fakeEngine writes an output of a fixed size per preset, or fails
type fakeEngine struct {
	mu       sync.Mutex
	sizes    map[Preset]int64
	failures map[Preset]error
	// partial makes a failing preset leave a file behind
	partial map[Preset]bool
	// noOutput makes a preset exit cleanly without writing anything
	noOutput map[Preset]bool
	calls    []Preset
}

func newFakeEngine(sizes map[Preset]int64) *fakeEngine {
	return &fakeEngine{
		sizes:    sizes,
		failures: map[Preset]error{},
		partial:  map[Preset]bool{},
		noOutput: map[Preset]bool{},
	}
}

func (f *fakeEngine) Compress(ctx context.Context, preset Preset, inputPath, outputPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, preset)
	err := f.failures[preset]
	partial := f.partial[preset]
	noOutput := f.noOutput[preset]
	size := f.sizes[preset]
	f.mu.Unlock()

	if _, statErr := os.Stat(inputPath); statErr != nil {
		return statErr
	}
	if err != nil {
		if partial {
			_ = os.WriteFile(outputPath, []byte("%PDF-partial"), 0644)
		}
		return err
	}
	if noOutput {
		return nil
	}
	return os.WriteFile(outputPath, []byte(strings.Repeat("x", int(size))), 0644)
}

func (f *fakeEngine) called() []Preset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Preset(nil), f.calls...)
}

// blockingEngine waits for its context to end
type blockingEngine struct{}

func (blockingEngine) Compress(ctx context.Context, _ Preset, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

var errEngine = errors.New("exit status 1")

func newTestStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func putInput(t *testing.T, store storage.ArtifactStore, id string, size int) {
	t.Helper()
	_, err := store.Put(context.Background(), id, strings.NewReader("%PDF"+strings.Repeat("x", size-4)))
	require.NoError(t, err)
}

func listIDs(t *testing.T, store storage.ArtifactStore, prefix string) []string {
	t.Helper()
	artifacts, err := store.List(context.Background(), prefix)
	require.NoError(t, err)
	ids := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		ids = append(ids, a.ID)
	}
	return ids
}
