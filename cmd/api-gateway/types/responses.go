package types

import (
	"time"

	"github.com/lgulliver/pdfshrink/internal/retention"
	"github.com/lgulliver/pdfshrink/internal/service"
	pkgtypes "github.com/lgulliver/pdfshrink/pkg/types"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// UploadResponse lists the files accepted by one upload
type UploadResponse struct {
	Success bool                    `json:"success"`
	Files   []pkgtypes.UploadedFile `json:"files"`
	Count   int                     `json:"count"`
}

// CompressRequest is the body of POST /api/compress
type CompressRequest struct {
	FileID  string `json:"fileId"`
	Quality string `json:"quality"`
}

// TargetSizeRequest is the body of POST /api/compress/target-size
type TargetSizeRequest struct {
	FileID   string `json:"fileId"`
	TargetKB int64  `json:"targetKB"`
}

type CompressResponse struct {
	Success bool `json:"success"`
	*service.CompressResult
}

type TargetSizeResponse struct {
	Success bool `json:"success"`
	*service.TargetResult
}

// CleanupResponse reports an on-demand sweep
type CleanupResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	*retention.Report
}

type JobResponse struct {
	Success bool                     `json:"success"`
	Job     *pkgtypes.CompressionJob `json:"job"`
}

type JobListResponse struct {
	Success bool                      `json:"success"`
	Jobs    []pkgtypes.CompressionJob `json:"jobs"`
	Count   int                       `json:"count"`
}

// HealthResponse is served by / and /health
type HealthResponse struct {
	Status  string    `json:"status"`
	Service string    `json:"service"`
	Time    time.Time `json:"time"`
}
