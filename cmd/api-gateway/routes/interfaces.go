package routes

import (
	"context"

	"github.com/lgulliver/pdfshrink/internal/retention"
	"github.com/lgulliver/pdfshrink/internal/service"
	"github.com/lgulliver/pdfshrink/pkg/types"
)

// PDFServiceInterface defines the contract the PDF routes need.
// *service.Service satisfies it.
type PDFServiceInterface interface {
	Upload(ctx context.Context, files []service.UploadInput) ([]types.UploadedFile, error)
	Compress(ctx context.Context, fileID, quality string) (*service.CompressResult, error)
	CompressToTarget(ctx context.Context, fileID string, targetKB int64) (*service.TargetResult, error)
	Open(ctx context.Context, id string) (*service.Download, error)
	Cleanup(ctx context.Context) (*retention.Report, error)
	Job(ctx context.Context, id string) (*types.CompressionJob, error)
	Jobs(ctx context.Context, limit int) ([]types.CompressionJob, error)
}
