package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/pdfshrink/internal/compress"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/lgulliver/pdfshrink/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	StatusCompressed      = "compressed"
	StatusTargetAchieved  = "target_achieved"
	StatusClosestPossible = "closest_possible"
)

// CompressResult describes a single-preset compression
type CompressResult struct {
	Status           string `json:"status"`
	FileID           string `json:"fileId"`
	DownloadURL      string `json:"downloadUrl"`
	OriginalSizeKB   int64  `json:"originalSizeKB"`
	CompressedSizeKB int64  `json:"compressedSizeKB"`
	CompressionRatio string `json:"compressionRatio"`
	Quality          string `json:"quality"`
	JobID            string `json:"jobId,omitempty"`
}

// TargetResult describes a target-size compression
type TargetResult struct {
	Status         string `json:"status"`
	FileID         string `json:"fileId"`
	DownloadURL    string `json:"downloadUrl"`
	TargetKB       int64  `json:"targetKB"`
	AchievedKB     int64  `json:"achievedKB"`
	OriginalSizeKB int64  `json:"originalSizeKB"`
	Met            bool   `json:"met"`
	Quality        string `json:"quality"`
	Message        string `json:"message"`
	JobID          string `json:"jobId,omitempty"`
}

// Compress runs one preset over fileID. The output lands at
// compressed-<fileID> only once the engine has succeeded, so a concurrent
// download never sees a half-written file.
func (s *Service) Compress(ctx context.Context, fileID, quality string) (*CompressResult, error) {
	if err := utils.ValidateID(fileID); err != nil {
		return nil, err
	}
	if quality == "" {
		quality = s.config.Compression.DefaultQuality
	}
	preset, err := compress.ParsePreset(quality)
	if err != nil {
		return nil, err
	}

	originalSize, err := s.inputSize(ctx, fileID)
	if err != nil {
		return nil, err
	}

	job := &types.CompressionJob{
		Kind:          types.JobKindPreset,
		InputID:       fileID,
		Preset:        preset.String(),
		OriginalBytes: originalSize,
	}
	start := time.Now()

	finalID := compressedPrefix + fileID
	tempID := "tmp-" + uuid.NewString() + "-" + fileID
	cleanupCtx := context.WithoutCancel(ctx)

	attempt, err := s.invoker.Compress(ctx, fileID, preset, tempID)
	if err == nil {
		err = s.store.Rename(cleanupCtx, tempID, finalID)
	}
	if err != nil {
		if delErr := s.store.Delete(cleanupCtx, tempID); delErr != nil {
			log.Debug().Err(delErr).Str("id", tempID).Msg("failed to remove partial output")
		}
		s.recordFailure(cleanupCtx, job, start, err)
		return nil, err
	}

	job.OutputID = finalID
	job.ResultBytes = attempt.SizeBytes
	job.Met = true
	job.Status = types.JobStatusSucceeded
	s.recordJob(cleanupCtx, job, start)

	log.Info().
		Str("input", fileID).
		Str("output", finalID).
		Str("preset", preset.String()).
		Int64("original_bytes", originalSize).
		Int64("compressed_bytes", attempt.SizeBytes).
		Msg("file compressed")

	return &CompressResult{
		Status:           StatusCompressed,
		FileID:           finalID,
		DownloadURL:      downloadURL(finalID),
		OriginalSizeKB:   utils.ToKB(originalSize),
		CompressedSizeKB: utils.ToKB(attempt.SizeBytes),
		CompressionRatio: utils.CompressionRatio(originalSize, attempt.SizeBytes),
		Quality:          preset.Token(),
		JobID:            jobID(job),
	}, nil
}

// CompressToTarget searches the presets for an output of at most targetKB
// and leaves it at target-<fileID>
func (s *Service) CompressToTarget(ctx context.Context, fileID string, targetKB int64) (*TargetResult, error) {
	if err := utils.ValidateID(fileID); err != nil {
		return nil, err
	}
	if targetKB <= 0 {
		return nil, fmt.Errorf("%w: file ID and a positive target size are required", types.ErrInvalidRequest)
	}

	originalSize, err := s.inputSize(ctx, fileID)
	if err != nil {
		return nil, err
	}

	job := &types.CompressionJob{
		Kind:          types.JobKindTarget,
		InputID:       fileID,
		TargetBytes:   compress.TargetBytes(targetKB),
		OriginalBytes: originalSize,
	}
	start := time.Now()
	finalID := targetPrefix + fileID
	cleanupCtx := context.WithoutCancel(ctx)

	result, err := s.searcher.Search(ctx, fileID, targetKB, finalID)
	if err != nil {
		if errors.Is(err, types.ErrAllPresetsFailed) {
			s.metrics.ObserveSearch(string(types.JobStatusFailed), len(compress.SearchOrder))
		}
		s.recordFailure(cleanupCtx, job, start, err)
		return nil, err
	}

	status := StatusClosestPossible
	job.Status = types.JobStatusClosest
	if result.Met {
		status = StatusTargetAchieved
		job.Status = types.JobStatusSucceeded
	}
	job.OutputID = result.FinalID
	job.Preset = result.Preset.String()
	job.ResultBytes = result.AchievedBytes
	job.Met = result.Met
	s.recordJob(cleanupCtx, job, start)
	s.metrics.ObserveSearch(status, len(result.Attempts))

	// A missed target reports rounded up so it never reads as equal to the budget.
	achievedKB := utils.ToKB(result.AchievedBytes)
	if !result.Met {
		achievedKB = utils.ToKBCeil(result.AchievedBytes)
	}
	message := fmt.Sprintf("Closest achievable size is %d KB (target: %d KB)", achievedKB, targetKB)
	if result.Met {
		message = fmt.Sprintf("Successfully compressed to %d KB (target: %d KB)", achievedKB, targetKB)
	}

	return &TargetResult{
		Status:         status,
		FileID:         result.FinalID,
		DownloadURL:    downloadURL(result.FinalID),
		TargetKB:       targetKB,
		AchievedKB:     achievedKB,
		OriginalSizeKB: utils.ToKB(originalSize),
		Met:            result.Met,
		Quality:        result.Preset.Token(),
		Message:        message,
		JobID:          jobID(job),
	}, nil
}

func (s *Service) inputSize(ctx context.Context, fileID string) (int64, error) {
	size, err := s.store.Size(ctx, fileID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", types.ErrInputNotFound, fileID)
		}
		return 0, err
	}
	return size, nil
}
