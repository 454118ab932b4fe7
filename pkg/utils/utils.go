package utils

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lgulliver/pdfshrink/pkg/types"
)

// pdfMagic is the header every PDF document starts with
const pdfMagic = "%PDF"

// GenerateFileID returns a new upload id keeping the original extension
func GenerateFileID(originalName string) string {
	ext := strings.ToLower(filepath.Ext(SanitizeFilename(originalName)))
	if ext == "" {
		ext = ".pdf"
	}
	return uuid.NewString() + ext
}

// ValidateID checks that id is a single flat file name inside the store
func ValidateID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", types.ErrInvalidID, id)
	case strings.ContainsAny(id, `/\`), strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q", types.ErrInvalidID, id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q", types.ErrInvalidID, id)
	}
	return nil
}

// SanitizeFilename removes path traversal attempts and dangerous characters
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "\"", "")
	filename = strings.TrimSpace(filepath.Base(filename))

	if filename == "" || filename == "." {
		filename = "document.pdf"
	}
	return filename
}

// HasPDFHeader reports whether r starts with the PDF magic bytes and rewinds it
func HasPDFHeader(r io.ReadSeeker) (bool, error) {
	buf := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("failed to read file header: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("failed to reset file position: %w", err)
	}
	return n == len(pdfMagic) && string(buf) == pdfMagic, nil
}

// ToKB converts bytes to kilobytes rounded to the nearest integer
func ToKB(bytes int64) int64 {
	return int64(math.Round(float64(bytes) / 1024))
}

// ToKBCeil converts bytes to kilobytes rounded up, so any size over n KB reports more than n
func ToKBCeil(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}
	return (bytes-1)/1024 + 1
}

// FormatMB renders bytes as megabytes with two decimals
func FormatMB(bytes int64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/(1024*1024))
}

// CompressionRatio returns the saved share as a percentage string, e.g. "62.5%"
func CompressionRatio(original, compressed int64) string {
	if original <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", (1-float64(compressed)/float64(original))*100)
}

// FormatBytes formats byte size in human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	suffixes := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp+1])
}
