package routes

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	apitypes "github.com/lgulliver/pdfshrink/cmd/api-gateway/types"
	"github.com/lgulliver/pdfshrink/internal/service"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	// uploadField is the multipart field carrying PDFs
	uploadField = "files"

	// multipartOverhead covers boundaries and part headers on top of file content
	multipartOverhead = 1 << 20
)

// UploadBodyLimit is the largest upload body a request may send: every file at
// its maximum size plus multipart framing. Zero disables the limit.
func UploadBodyLimit(maxFiles int, maxFileSize int64) int64 {
	if maxFiles <= 0 || maxFileSize <= 0 {
		return 0
	}
	return int64(maxFiles)*maxFileSize + multipartOverhead
}

// PDFRoutes sets up the upload, compression, download and cleanup routes.
// Upload bodies larger than maxUploadBytes are refused before they are parsed.
func PDFRoutes(api *gin.RouterGroup, svc PDFServiceInterface, maxUploadBytes int64) {
	api.POST("/upload", handleUpload(svc, maxUploadBytes))
	api.POST("/compress", handleCompress(svc))
	api.POST("/compress/target-size", handleTargetSize(svc))
	api.GET("/download/:id", handleDownload(svc))
	api.GET("/cleanup", handleCleanup(svc))
	api.GET("/jobs", handleListJobs(svc))
	api.GET("/jobs/:id", handleGetJob(svc))
}

func handleUpload(svc PDFServiceInterface, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			if c.Request.ContentLength > maxBytes {
				respondTooLarge(c, maxBytes)
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondTooLarge(c, maxBytes)
				return
			}
			respondError(c, "No files uploaded", fmt.Errorf("%w: %w", types.ErrInvalidRequest, err))
			return
		}

		headers := form.File[uploadField]
		inputs := make([]service.UploadInput, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				closeAll(inputs)
				respondError(c, "Upload failed", err)
				return
			}
			inputs = append(inputs, service.UploadInput{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Content:     f,
			})
		}
		defer closeAll(inputs)

		files, err := svc.Upload(c.Request.Context(), inputs)
		if err != nil {
			respondError(c, "Upload failed", err)
			return
		}

		c.JSON(http.StatusOK, apitypes.UploadResponse{
			Success: true,
			Files:   files,
			Count:   len(files),
		})
	}
}

func respondTooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, apitypes.ErrorResponse{
		Success: false,
		Error:   "File too large",
		Message: fmt.Sprintf("upload body exceeds %d bytes", limit),
	})
}

func closeAll(inputs []service.UploadInput) {
	for _, in := range inputs {
		if f, ok := in.Content.(multipart.File); ok {
			f.Close()
		}
	}
}

func handleCompress(svc PDFServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req apitypes.CompressRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.FileID == "" {
			respondError(c, "File ID is required", fmt.Errorf("%w: fileId is required", types.ErrInvalidRequest))
			return
		}

		result, err := svc.Compress(c.Request.Context(), req.FileID, req.Quality)
		if err != nil {
			respondError(c, "Compression failed", err)
			return
		}

		c.JSON(http.StatusOK, apitypes.CompressResponse{Success: true, CompressResult: result})
	}
}

func handleTargetSize(svc PDFServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req apitypes.TargetSizeRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.FileID == "" || req.TargetKB <= 0 {
			respondError(c, "File ID and target size are required",
				fmt.Errorf("%w: fileId and a positive targetKB are required", types.ErrInvalidRequest))
			return
		}

		result, err := svc.CompressToTarget(c.Request.Context(), req.FileID, req.TargetKB)
		if err != nil {
			respondError(c, "Target size compression failed", err)
			return
		}

		c.JSON(http.StatusOK, apitypes.TargetSizeResponse{Success: true, TargetResult: result})
	}
}

func handleDownload(svc PDFServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		dl, err := svc.Open(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, "Download failed", err)
			return
		}
		defer dl.Content.Close()

		c.Header("Content-Disposition", contentDisposition(dl.Filename))
		c.DataFromReader(http.StatusOK, dl.Size, "application/pdf", dl.Content, nil)
	}
}

// contentDisposition builds an attachment header. Non-ASCII names get an
// RFC 5987 filename* parameter next to an ASCII fallback.
func contentDisposition(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	header := `attachment; filename="` + fallback + `"`
	if fallback != name {
		header += "; filename*=UTF-8''" + encodeExtValue(name)
	}
	return header
}

// encodeExtValue percent-encodes every byte outside the RFC 5987 attr-char set
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isAttrChar(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isAttrChar(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", ch) >= 0
}

func handleCleanup(svc PDFServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.Cleanup(c.Request.Context())
		if err != nil {
			respondError(c, "Cleanup failed", err)
			return
		}

		log.Info().
			Int("deleted", report.Deleted).
			Int("errors", report.Errors).
			Int("total", report.Total).
			Msg("on-demand cleanup complete")

		c.JSON(http.StatusOK, apitypes.CleanupResponse{
			Success: true,
			Status:  "cleanup completed",
			Report:  report,
		})
	}
}

func handleListJobs(svc PDFServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				respondError(c, "Invalid limit", fmt.Errorf("%w: limit must be a non-negative integer", types.ErrInvalidRequest))
				return
			}
			limit = n
		}

		jobs, err := svc.Jobs(c.Request.Context(), limit)
		if err != nil {
			respondError(c, "Failed to list jobs", err)
			return
		}

		c.JSON(http.StatusOK, apitypes.JobListResponse{Success: true, Jobs: jobs, Count: len(jobs)})
	}
}

func handleGetJob(svc PDFServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := svc.Job(c.Request.Context(), c.Param("id"))
		if errors.Is(err, types.ErrNotFound) {
			c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "Job not found", Message: err.Error()})
			return
		}
		if err != nil {
			respondError(c, "Failed to load job", err)
			return
		}

		c.JSON(http.StatusOK, apitypes.JobResponse{Success: true, Job: job})
	}
}
