package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Artifact describes a stored blob: an upload, a probe or a final output
type Artifact struct {
	ID         string    `json:"id"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// UploadedFile is what upload intake hands to the rest of the service
type UploadedFile struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	SizeKB       int64  `json:"sizeKB"`
	SizeMB       string `json:"sizeMB"`
}

// JobKind distinguishes the two compression routes
type JobKind string

const (
	JobKindPreset JobKind = "preset"
	JobKindTarget JobKind = "target"
)

// JobStatus is the terminal state of a compression job
type JobStatus string

const (
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusClosest   JobStatus = "closest_possible"
	JobStatusFailed    JobStatus = "failed"
)

// CompressionJob is the persisted record of one compression request
type CompressionJob struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Kind          JobKind   `json:"kind" gorm:"not null;index"`
	InputID       string    `json:"input_id" gorm:"not null;index"`
	OutputID      string    `json:"output_id"`
	Preset        string    `json:"preset"`
	TargetBytes   int64     `json:"target_bytes"`
	OriginalBytes int64     `json:"original_bytes"`
	ResultBytes   int64     `json:"result_bytes"`
	Met           bool      `json:"met"`
	Status        JobStatus `json:"status" gorm:"not null"`
	Error         string    `json:"error,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// BeforeCreate generates a UUID for the job ID
func (j *CompressionJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
