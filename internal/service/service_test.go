package service

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lgulliver/pdfshrink/internal/common"
	"github.com/lgulliver/pdfshrink/internal/compress"
	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/lgulliver/pdfshrink/pkg/config"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kb = 1024

// sizedEngine writes an output of a fixed size per preset
type sizedEngine struct {
	mu       sync.Mutex
	sizes    map[compress.Preset]int64
	failures map[compress.Preset]error
}

func (e *sizedEngine) Compress(ctx context.Context, preset compress.Preset, inputPath, outputPath string) error {
	e.mu.Lock()
	size, err := e.sizes[preset], e.failures[preset]
	e.mu.Unlock()
	if err != nil {
		_ = os.WriteFile(outputPath, []byte("%PDF-partial"), 0644)
		return err
	}
	return os.WriteFile(outputPath, []byte(strings.Repeat("x", int(size))), 0644)
}

type recordingMetrics struct {
	mu       sync.Mutex
	searches []string
	uploads  int
	sweeps   int
	attempts int
}

func (r *recordingMetrics) ObserveAttempt(string, bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *recordingMetrics) ObserveSweep(int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
}

func (r *recordingMetrics) ObserveSearch(status string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, status)
}

func (r *recordingMetrics) ObserveUpload(files int, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads += files
}

func (r *recordingMetrics) ObserveRequest(string, string, int, time.Duration) {}

type fixture struct {
	svc     *Service
	store   *storage.LocalStorage
	engine  *sizedEngine
	db      *common.Database
	metrics *recordingMetrics
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	db, err := common.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Upload.MaxFileSize = 64 * kb
	cfg.Upload.MaxFilesPerRequest = 2
	cfg.Retention.DeleteAfter = 30 * time.Minute

	engine := &sizedEngine{
		sizes: map[compress.Preset]int64{
			compress.PresetScreen:   300 * kb,
			compress.PresetEbook:    700 * kb,
			compress.PresetPrinter:  1500 * kb,
			compress.PresetPrepress: 1800 * kb,
		},
		failures: map[compress.Preset]error{},
	}
	rec := &recordingMetrics{}

	svc := NewService(store, engine, cfg, rec).WithJobs(db)
	return &fixture{svc: svc, store: store, engine: engine, db: db, metrics: rec}
}

func (f *fixture) putInput(t *testing.T, id string, size int) {
	t.Helper()
	_, err := f.store.Put(context.Background(), id, strings.NewReader("%PDF"+strings.Repeat("x", size-4)))
	require.NoError(t, err)
}

func (f *fixture) ids(t *testing.T) []string {
	t.Helper()
	artifacts, err := f.store.List(context.Background(), "")
	require.NoError(t, err)
	ids := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		ids = append(ids, a.ID)
	}
	return ids
}

func pdfUpload(name string, body string) UploadInput {
	return UploadInput{
		Filename: name,
		Size:     int64(len(body)),
		Content:  strings.NewReader(body),
	}
}

func TestUpload_StoresPDFs(t *testing.T) {
	f := setupService(t)

	files, err := f.svc.Upload(context.Background(), []UploadInput{
		pdfUpload("report.pdf", "%PDF-1.7 body"),
		{Filename: "scan.PDF", ContentType: "application/pdf", Size: 4, Content: strings.NewReader("data")},
	})

	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "report.pdf", files[0].OriginalName)
	assert.True(t, strings.HasSuffix(files[0].ID, ".pdf"))
	assert.Equal(t, int64(13), files[0].Size)
	assert.Equal(t, "0.00", files[0].SizeMB)
	assert.ElementsMatch(t, []string{files[0].ID, files[1].ID}, f.ids(t))
	assert.Equal(t, 2, f.metrics.uploads)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		files []UploadInput
	}{
		{name: "no files", files: nil},
		{name: "too many files", files: []UploadInput{
			pdfUpload("a.pdf", "%PDF"), pdfUpload("b.pdf", "%PDF"), pdfUpload("c.pdf", "%PDF"),
		}},
		{name: "not a pdf", files: []UploadInput{pdfUpload("notes.txt", "hello")}},
		{name: "too large", files: []UploadInput{
			{Filename: "big.pdf", ContentType: "application/pdf", Size: 65 * kb, Content: strings.NewReader("%PDF")},
		}},
		{name: "one bad file rejects the batch", files: []UploadInput{
			pdfUpload("ok.pdf", "%PDF"), pdfUpload("bad.pdf", "GIF89a"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupService(t)

			_, err := f.svc.Upload(context.Background(), tt.files)

			assert.True(t, errors.Is(err, types.ErrInvalidRequest), "got %v", err)
			assert.Empty(t, f.ids(t))
		})
	}
}

func TestCompress_SinglePreset(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 2000*kb)

	result, err := f.svc.Compress(context.Background(), "in.pdf", "/screen")

	require.NoError(t, err)
	assert.Equal(t, StatusCompressed, result.Status)
	assert.Equal(t, "compressed-in.pdf", result.FileID)
	assert.Equal(t, "/api/download/compressed-in.pdf", result.DownloadURL)
	assert.Equal(t, int64(2000), result.OriginalSizeKB)
	assert.Equal(t, int64(300), result.CompressedSizeKB)
	assert.Equal(t, "85.0%", result.CompressionRatio)
	assert.Equal(t, "/screen", result.Quality)
	assert.NotEmpty(t, result.JobID)
	assert.ElementsMatch(t, []string{"in.pdf", "compressed-in.pdf"}, f.ids(t))

	job, err := f.svc.Job(context.Background(), result.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobKindPreset, job.Kind)
	assert.Equal(t, types.JobStatusSucceeded, job.Status)
	assert.Equal(t, int64(300*kb), job.ResultBytes)
}

func TestCompress_DefaultQuality(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 2000*kb)

	result, err := f.svc.Compress(context.Background(), "in.pdf", "")

	require.NoError(t, err)
	assert.Equal(t, "/ebook", result.Quality)
	assert.Equal(t, int64(700), result.CompressedSizeKB)
}

func TestCompress_Errors(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 10*kb)

	_, err := f.svc.Compress(context.Background(), "missing.pdf", "/ebook")
	assert.True(t, errors.Is(err, types.ErrInputNotFound))

	_, err = f.svc.Compress(context.Background(), "../etc/passwd", "/ebook")
	assert.True(t, errors.Is(err, types.ErrInvalidID))

	_, err = f.svc.Compress(context.Background(), "in.pdf", "/best")
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))
}

func TestCompress_FailureLeavesNoOutput(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 10*kb)
	f.engine.failures[compress.PresetEbook] = errors.New("exit status 1")

	_, err := f.svc.Compress(context.Background(), "in.pdf", "/ebook")

	assert.True(t, errors.Is(err, types.ErrCompressionFailed))
	assert.Equal(t, []string{"in.pdf"}, f.ids(t))

	jobs, err := f.svc.Jobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "exit status 1")
}

func TestCompressToTarget_Achieved(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 2000*kb)

	result, err := f.svc.CompressToTarget(context.Background(), "in.pdf", 500)

	require.NoError(t, err)
	assert.Equal(t, StatusTargetAchieved, result.Status)
	assert.Equal(t, "target-in.pdf", result.FileID)
	assert.Equal(t, "/api/download/target-in.pdf", result.DownloadURL)
	assert.Equal(t, int64(300), result.AchievedKB)
	assert.Equal(t, int64(2000), result.OriginalSizeKB)
	assert.True(t, result.Met)
	assert.Equal(t, "/screen", result.Quality)
	assert.Equal(t, "Successfully compressed to 300 KB (target: 500 KB)", result.Message)
	assert.ElementsMatch(t, []string{"in.pdf", "target-in.pdf"}, f.ids(t))
	assert.Equal(t, []string{StatusTargetAchieved}, f.metrics.searches)
}

func TestCompressToTarget_ClosestPossible(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 2000*kb)

	result, err := f.svc.CompressToTarget(context.Background(), "in.pdf", 100)

	require.NoError(t, err)
	assert.Equal(t, StatusClosestPossible, result.Status)
	assert.False(t, result.Met)
	assert.Equal(t, int64(300), result.AchievedKB)
	assert.Equal(t, "Closest achievable size is 300 KB (target: 100 KB)", result.Message)
	assert.ElementsMatch(t, []string{"in.pdf", "target-in.pdf"}, f.ids(t))

	job, err := f.svc.Job(context.Background(), result.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusClosest, job.Status)
	assert.Equal(t, int64(100*kb), job.TargetBytes)
}

func TestCompressToTarget_MissedByLessThanOneKB(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 2000*kb)
	f.engine.sizes[compress.PresetScreen] = 204900

	result, err := f.svc.CompressToTarget(context.Background(), "in.pdf", 200)

	require.NoError(t, err)
	assert.False(t, result.Met)
	assert.Equal(t, StatusClosestPossible, result.Status)
	assert.Equal(t, int64(201), result.AchievedKB)
	assert.Equal(t, "Closest achievable size is 201 KB (target: 200 KB)", result.Message)
}

func TestCompressToTarget_HugeTarget(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 2000*kb)

	result, err := f.svc.CompressToTarget(context.Background(), "in.pdf", 1<<53)

	require.NoError(t, err)
	assert.True(t, result.Met)
	assert.Equal(t, StatusTargetAchieved, result.Status)

	job, err := f.svc.Job(context.Background(), result.JobID)
	require.NoError(t, err)
	assert.Equal(t, compress.TargetBytes(1<<53), job.TargetBytes)
}

func TestCompressToTarget_AllPresetsFail(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 2000*kb)
	for _, p := range compress.SearchOrder {
		f.engine.failures[p] = errors.New("exit status 1")
	}

	_, err := f.svc.CompressToTarget(context.Background(), "in.pdf", 500)

	assert.True(t, errors.Is(err, types.ErrAllPresetsFailed))
	assert.Equal(t, []string{"in.pdf"}, f.ids(t))
	assert.Equal(t, []string{string(types.JobStatusFailed)}, f.metrics.searches)
}

func TestCompressToTarget_InvalidRequests(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "in.pdf", 10*kb)

	_, err := f.svc.CompressToTarget(context.Background(), "in.pdf", 0)
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))

	_, err = f.svc.CompressToTarget(context.Background(), "gone.pdf", 100)
	assert.True(t, errors.Is(err, types.ErrInputNotFound))
}

func TestOpen(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "abc.pdf", 10*kb)

	dl, err := f.svc.Open(context.Background(), "abc.pdf")
	require.NoError(t, err)
	defer dl.Content.Close()

	assert.Equal(t, "compressed-abc.pdf", dl.Filename)
	assert.Equal(t, int64(10*kb), dl.Size)
	body, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	assert.Len(t, body, 10*kb)

	_, err = f.svc.Open(context.Background(), "nope.pdf")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestOpen_UsesCachedOriginalName(t *testing.T) {
	f := setupService(t)
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	cache, err := common.NewCache(&config.RedisConfig{Host: srv.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	f.svc.WithCache(cache)

	files, err := f.svc.Upload(context.Background(), []UploadInput{pdfUpload("Quarterly Report.pdf", "%PDF-1.4")})
	require.NoError(t, err)
	id := files[0].ID

	_, err = f.svc.Compress(context.Background(), id, "/screen")
	require.NoError(t, err)

	dl, err := f.svc.Open(context.Background(), "compressed-"+id)
	require.NoError(t, err)
	defer dl.Content.Close()
	assert.Equal(t, "compressed-Quarterly Report.pdf", dl.Filename)
}

func TestCleanup(t *testing.T) {
	f := setupService(t)
	f.putInput(t, "old.pdf", kb)
	f.putInput(t, "new.pdf", kb)
	path, err := f.store.Path("old.pdf")
	require.NoError(t, err)
	old := time.Now().Add(-45 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	report, err := f.svc.Cleanup(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, []string{"new.pdf"}, f.ids(t))
	assert.Equal(t, 1, f.metrics.sweeps)
}

func TestJob_Lookup(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.Job(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, types.ErrInvalidID))

	_, err = f.svc.Job(context.Background(), "3f1c1e5e-8d7a-4b7e-9a57-0c3e2a1b9d10")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestJobs_WithoutHistory(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewService(store, &sizedEngine{}, config.Default(), nil)

	jobs, err := svc.Jobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	_, err = svc.Job(context.Background(), "3f1c1e5e-8d7a-4b7e-9a57-0c3e2a1b9d10")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
