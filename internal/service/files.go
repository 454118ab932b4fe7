package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/pdfshrink/internal/retention"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/lgulliver/pdfshrink/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Download is an open artifact ready to be streamed
type Download struct {
	ID       string
	Filename string
	Size     int64
	Content  io.ReadCloser
}

// Open returns the artifact stored under id together with the attachment
// name it should be served as. The caller closes Content.
func (s *Service) Open(ctx context.Context, id string) (*Download, error) {
	content, artifact, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Download{
		ID:       artifact.ID,
		Filename: s.attachmentName(ctx, artifact.ID),
		Size:     artifact.Size,
		Content:  content,
	}, nil
}

func (s *Service) attachmentName(ctx context.Context, id string) string {
	fallback := compressedPrefix + id
	if s.cache == nil {
		return fallback
	}

	uploadID := id
	for _, prefix := range []string{compressedPrefix, targetPrefix} {
		if trimmed, ok := strings.CutPrefix(uploadID, prefix); ok {
			uploadID = trimmed
			break
		}
	}

	file, err := s.cache.GetUpload(ctx, uploadID)
	if err != nil {
		return fallback
	}
	return compressedPrefix + utils.SanitizeFilename(file.OriginalName)
}

// Cleanup runs an on-demand retention sweep
func (s *Service) Cleanup(ctx context.Context) (*retention.Report, error) {
	return s.sweeper.Sweep(ctx, time.Now(), s.config.Retention.OnDemandMaxAge())
}

// Job returns one recorded compression job
func (s *Service) Job(ctx context.Context, id string) (*types.CompressionJob, error) {
	jobUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a job id", types.ErrInvalidID, id)
	}
	if s.jobs == nil {
		return nil, fmt.Errorf("%w: job history is disabled", types.ErrNotFound)
	}
	return s.jobs.GetJob(ctx, jobUUID)
}

// Jobs lists recent compression jobs, newest first
func (s *Service) Jobs(ctx context.Context, limit int) ([]types.CompressionJob, error) {
	if s.jobs == nil {
		return []types.CompressionJob{}, nil
	}
	return s.jobs.ListJobs(ctx, limit)
}

// recordJob is best-effort: a history failure never fails the request
func (s *Service) recordJob(ctx context.Context, job *types.CompressionJob, start time.Time) {
	if s.jobs == nil {
		return
	}
	job.DurationMS = time.Since(start).Milliseconds()
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		log.Warn().Err(err).Str("input", job.InputID).Msg("failed to record compression job")
		job.ID = uuid.Nil
	}
}

func (s *Service) recordFailure(ctx context.Context, job *types.CompressionJob, start time.Time, cause error) {
	job.Status = types.JobStatusFailed
	job.Error = cause.Error()
	s.recordJob(ctx, job, start)
}

func jobID(job *types.CompressionJob) string {
	if job.ID == uuid.Nil {
		return ""
	}
	return job.ID.String()
}
