package compress

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	const target = 200 * kb
	best := &candidate{id: "b", preset: PresetScreen, size: 300 * kb}

	tests := []struct {
		name  string
		best  *candidate
		probe candidate
		want  verdict
	}{
		{"fits with no best", nil, candidate{size: 80 * kb}, verdictAccept},
		{"fits exactly", best, candidate{size: target}, verdictAccept},
		{"first over budget becomes best", nil, candidate{size: 250 * kb}, verdictKeep},
		{"smaller than best", best, candidate{size: 250 * kb}, verdictKeep},
		{"larger than best", best, candidate{size: 400 * kb}, verdictDiscard},
		{"equal to best", best, candidate{size: 300 * kb}, verdictDiscard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decide(tt.best, tt.probe, target))
		})
	}
}

func scenarioSizes() map[Preset]int64 {
	return map[Preset]int64{
		PresetScreen:  80 * kb,
		PresetEbook:   150 * kb,
		PresetPrinter: 300 * kb,
	}
}

func newSearchFixture(t *testing.T, engine *fakeEngine) (*Searcher, *fakeEngine) {
	t.Helper()
	store := newTestStore(t)
	putInput(t, store, "in.pdf", 500*kb)
	return NewSearcher(store, NewInvoker(store, engine, time.Second)), engine
}

func TestSearch_FirstPresetMeetsTarget(t *testing.T) {
	searcher, engine := newSearchFixture(t, newFakeEngine(scenarioSizes()))

	result, err := searcher.Search(context.Background(), "in.pdf", 200, "target-in.pdf")

	require.NoError(t, err)
	assert.True(t, result.Met)
	assert.Equal(t, int64(80*kb), result.AchievedBytes)
	assert.Equal(t, int64(200*kb), result.TargetBytes)
	assert.Equal(t, PresetScreen, result.Preset)
	assert.Equal(t, []Preset{PresetScreen}, engine.called(), "ebook and printer must not run")
	assert.Len(t, result.Attempts, 1)

	assert.ElementsMatch(t, []string{"in.pdf", "target-in.pdf"}, listIDs(t, searcher.store, ""))
}

func TestSearch_HugeTargetStillMeets(t *testing.T) {
	searcher, engine := newSearchFixture(t, newFakeEngine(scenarioSizes()))

	// 2^53 KB is past the int64 byte range
	result, err := searcher.Search(context.Background(), "in.pdf", 1<<53, "target-in.pdf")

	require.NoError(t, err)
	assert.True(t, result.Met)
	assert.Equal(t, int64(math.MaxInt64), result.TargetBytes)
	assert.Equal(t, int64(80*kb), result.AchievedBytes)
	assert.Equal(t, []Preset{PresetScreen}, engine.called())
}

func TestTargetBytes(t *testing.T) {
	tests := []struct {
		name     string
		targetKB int64
		want     int64
	}{
		{"small", 200, 200 * kb},
		{"largest exact", MaxTargetKB, MaxTargetKB * 1024},
		{"one past largest", MaxTargetKB + 1, math.MaxInt64},
		{"max int", math.MaxInt64, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetBytes(tt.targetKB)
			assert.Equal(t, tt.want, got)
			assert.Positive(t, got)
		})
	}
}

func TestSearch_TargetBelowEveryPreset(t *testing.T) {
	searcher, engine := newSearchFixture(t, newFakeEngine(scenarioSizes()))

	result, err := searcher.Search(context.Background(), "in.pdf", 50, "target-in.pdf")

	require.NoError(t, err)
	assert.False(t, result.Met)
	assert.Equal(t, int64(80*kb), result.AchievedBytes)
	assert.Equal(t, PresetScreen, result.Preset)
	assert.Equal(t, SearchOrder, engine.called())

	size, err := searcher.store.Size(context.Background(), "target-in.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(80*kb), size)
	assert.Empty(t, listIDs(t, searcher.store, "probe-"), "ebook and printer probes are deleted")
}

func TestSearch_FailedPresetIsSkipped(t *testing.T) {
	engine := newFakeEngine(scenarioSizes())
	engine.failures[PresetScreen] = errEngine
	engine.partial[PresetScreen] = true
	searcher, _ := newSearchFixture(t, engine)

	result, err := searcher.Search(context.Background(), "in.pdf", 200, "target-in.pdf")

	require.NoError(t, err)
	assert.True(t, result.Met)
	assert.Equal(t, int64(150*kb), result.AchievedBytes)
	assert.Equal(t, PresetEbook, result.Preset)
	assert.Equal(t, []Preset{PresetScreen, PresetEbook}, engine.called())
	require.Len(t, result.Attempts, 2)
	assert.False(t, result.Attempts[0].Succeeded)
	assert.True(t, result.Attempts[1].Succeeded)
	assert.Empty(t, listIDs(t, searcher.store, "probe-"), "partial screen output is removed")
}

func TestSearch_LaterPresetMeetsTargetAfterKeepingBest(t *testing.T) {
	engine := newFakeEngine(map[Preset]int64{
		PresetScreen:  260 * kb,
		PresetEbook:   180 * kb,
		PresetPrinter: 400 * kb,
	})
	searcher, _ := newSearchFixture(t, engine)

	result, err := searcher.Search(context.Background(), "in.pdf", 200, "target-in.pdf")

	require.NoError(t, err)
	assert.True(t, result.Met)
	assert.Equal(t, PresetEbook, result.Preset)
	assert.Equal(t, int64(180*kb), result.AchievedBytes)
	assert.Empty(t, listIDs(t, searcher.store, "probe-"), "earlier best is deleted")
}

func TestSearch_ClosestKeepsSmallestAcrossPresets(t *testing.T) {
	engine := newFakeEngine(map[Preset]int64{
		PresetScreen:  300 * kb,
		PresetEbook:   120 * kb,
		PresetPrinter: 200 * kb,
	})
	searcher, _ := newSearchFixture(t, engine)

	result, err := searcher.Search(context.Background(), "in.pdf", 100, "target-in.pdf")

	require.NoError(t, err)
	assert.False(t, result.Met)
	assert.Equal(t, PresetEbook, result.Preset)
	assert.Equal(t, int64(120*kb), result.AchievedBytes)
	assert.Empty(t, listIDs(t, searcher.store, "probe-"))
}

func TestSearch_AllPresetsFailed(t *testing.T) {
	engine := newFakeEngine(scenarioSizes())
	for _, p := range SearchOrder {
		engine.failures[p] = errEngine
		engine.partial[p] = true
	}
	searcher, _ := newSearchFixture(t, engine)

	result, err := searcher.Search(context.Background(), "in.pdf", 200, "target-in.pdf")

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, types.ErrAllPresetsFailed))
	assert.Equal(t, []string{"in.pdf"}, listIDs(t, searcher.store, ""))
}

func TestSearch_InvalidRequests(t *testing.T) {
	searcher, engine := newSearchFixture(t, newFakeEngine(scenarioSizes()))
	ctx := context.Background()

	_, err := searcher.Search(ctx, "in.pdf", 0, "target-in.pdf")
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))

	_, err = searcher.Search(ctx, "in.pdf", -5, "target-in.pdf")
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))

	_, err = searcher.Search(ctx, "missing.pdf", 200, "target-missing.pdf")
	assert.True(t, errors.Is(err, types.ErrInputNotFound))

	_, err = searcher.Search(ctx, "in.pdf", 200, "../escape.pdf")
	assert.True(t, errors.Is(err, types.ErrInvalidID))

	assert.Empty(t, engine.called())
}

func TestSearch_CancelledContext(t *testing.T) {
	searcher, engine := newSearchFixture(t, newFakeEngine(scenarioSizes()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := searcher.Search(ctx, "in.pdf", 50, "target-in.pdf")

	assert.Error(t, err)
	assert.Empty(t, engine.called())
	assert.Empty(t, listIDs(t, searcher.store, "probe-"))
}

func TestSearch_ConcurrentRequestsForSameInput(t *testing.T) {
	searcher, _ := newSearchFixture(t, newFakeEngine(scenarioSizes()))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	results := make([]*SearchResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = searcher.Search(context.Background(), "in.pdf", 50, "target-in.pdf")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(80*kb), results[i].AchievedBytes)
	}
	assert.Empty(t, listIDs(t, searcher.store, "probe-"))

	size, err := searcher.store.Size(context.Background(), "target-in.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(80*kb), size)
}

func TestProbeID(t *testing.T) {
	id := ProbeID("tok", PresetEbook, "in.pdf")
	assert.Equal(t, "probe-tok-ebook-in.pdf", id)
	assert.Contains(t, id, ProbePrefix("tok"))
}
