package service

import (
	"context"
	"fmt"
	"io"

	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/lgulliver/pdfshrink/pkg/utils"
	"github.com/rs/zerolog/log"
)

const pdfContentType = "application/pdf"

// UploadInput is one file of a multipart upload
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.ReadSeeker
}

// Upload validates and stores a batch of PDFs. The batch is rejected as a
// whole if any file is not acceptable.
func (s *Service) Upload(ctx context.Context, files []UploadInput) ([]types.UploadedFile, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", types.ErrInvalidRequest)
	}
	if limit := s.config.Upload.MaxFilesPerRequest; limit > 0 && len(files) > limit {
		return nil, fmt.Errorf("%w: at most %d files per upload, got %d", types.ErrInvalidRequest, limit, len(files))
	}

	for _, f := range files {
		if err := s.checkUpload(f); err != nil {
			return nil, err
		}
	}

	uploaded := make([]types.UploadedFile, 0, len(files))
	var total int64
	for _, f := range files {
		id := utils.GenerateFileID(f.Filename)
		artifact, err := s.store.Put(ctx, id, f.Content)
		if err != nil {
			s.discardUploads(uploaded)
			return nil, fmt.Errorf("failed to store %s: %w", f.Filename, err)
		}

		file := types.UploadedFile{
			ID:           artifact.ID,
			OriginalName: utils.SanitizeFilename(f.Filename),
			Size:         artifact.Size,
			SizeKB:       utils.ToKB(artifact.Size),
			SizeMB:       utils.FormatMB(artifact.Size),
		}
		uploaded = append(uploaded, file)
		total += artifact.Size

		s.rememberUpload(ctx, &file)

		log.Info().
			Str("id", file.ID).
			Str("original_name", file.OriginalName).
			Int64("size", file.Size).
			Msg("file uploaded")
	}

	s.metrics.ObserveUpload(len(uploaded), total)
	return uploaded, nil
}

func (s *Service) checkUpload(f UploadInput) error {
	if limit := s.config.Upload.MaxFileSize; limit > 0 && f.Size > limit {
		return fmt.Errorf("%w: %s exceeds the %s upload limit", types.ErrInvalidRequest, f.Filename, utils.FormatBytes(limit))
	}
	if f.Content == nil {
		return fmt.Errorf("%w: %s has no content", types.ErrInvalidRequest, f.Filename)
	}
	if f.ContentType == pdfContentType {
		return nil
	}
	ok, err := utils.HasPDFHeader(f.Content)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", types.ErrInvalidRequest, f.Filename, err)
	}
	if !ok {
		return fmt.Errorf("%w: only PDF files are allowed, %s is not a PDF", types.ErrInvalidRequest, f.Filename)
	}
	return nil
}

func (s *Service) rememberUpload(ctx context.Context, file *types.UploadedFile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutUpload(ctx, file, s.config.Retention.OnDemandMaxAge()); err != nil {
		log.Warn().Err(err).Str("id", file.ID).Msg("failed to cache upload metadata")
	}
}

// discardUploads removes the already stored part of a failed batch
func (s *Service) discardUploads(files []types.UploadedFile) {
	ctx := context.Background()
	for _, f := range files {
		if err := s.store.Delete(ctx, f.ID); err != nil {
			log.Debug().Err(err).Str("id", f.ID).Msg("failed to discard upload")
		}
	}
}
