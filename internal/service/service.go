package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/pdfshrink/internal/compress"
	"github.com/lgulliver/pdfshrink/internal/metrics"
	"github.com/lgulliver/pdfshrink/internal/retention"
	"github.com/lgulliver/pdfshrink/internal/storage"
	"github.com/lgulliver/pdfshrink/pkg/config"
	"github.com/lgulliver/pdfshrink/pkg/types"
)

const (
	compressedPrefix = "compressed-"
	targetPrefix     = "target-"
	downloadPath     = "/api/download/"
)

// JobStore persists compression history. *common.Database satisfies it.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.CompressionJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.CompressionJob, error)
	ListJobs(ctx context.Context, limit int) ([]types.CompressionJob, error)
}

// UploadCache remembers upload metadata. *common.Cache satisfies it.
type UploadCache interface {
	PutUpload(ctx context.Context, file *types.UploadedFile, ttl time.Duration) error
	GetUpload(ctx context.Context, id string) (*types.UploadedFile, error)
}

// Service orchestrates uploads, compression, downloads and cleanup over one
// artifact store
type Service struct {
	store    storage.ArtifactStore
	invoker  *compress.Invoker
	searcher *compress.Searcher
	sweeper  *retention.Sweeper
	jobs     JobStore
	cache    UploadCache
	metrics  metrics.Recorder
	config   *config.Config
}

// NewService wires the compression core to store. A nil recorder disables metrics.
func NewService(store storage.ArtifactStore, engine compress.Engine, cfg *config.Config, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	invoker := compress.NewInvoker(store, engine, cfg.Compression.Timeout).WithObserver(recorder)
	return &Service{
		store:    store,
		invoker:  invoker,
		searcher: compress.NewSearcher(store, invoker),
		sweeper:  retention.NewSweeper(store, cfg.Retention.Concurrency).WithObserver(recorder),
		metrics:  recorder,
		config:   cfg,
	}
}

// WithJobs enables job history
func (s *Service) WithJobs(jobs JobStore) *Service {
	s.jobs = jobs
	return s
}

// WithCache enables the upload metadata cache
func (s *Service) WithCache(cache UploadCache) *Service {
	s.cache = cache
	return s
}

// Sweeper exposes the retention sweeper for the periodic loop
func (s *Service) Sweeper() *retention.Sweeper {
	return s.sweeper
}

func downloadURL(id string) string {
	return downloadPath + id
}
