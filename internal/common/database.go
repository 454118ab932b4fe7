package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/lgulliver/pdfshrink/pkg/config"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultJobListLimit caps ListJobs when no limit is given
const DefaultJobListLimit = 50

// MaxJobListLimit is the largest page ListJobs will return
const MaxJobListLimit = 500

// Database wraps the GORM database connection
type Database struct {
	*gorm.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseURL())
	case "sqlite", "":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Migrate runs database migrations
func (db *Database) Migrate() error {
	return db.AutoMigrate(&types.CompressionJob{})
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateJob records a finished compression request
func (db *Database) CreateJob(ctx context.Context, job *types.CompressionJob) error {
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}
	return nil
}

// GetJob loads a job by id
func (db *Database) GetJob(ctx context.Context, id uuid.UUID) (*types.CompressionJob, error) {
	var job types.CompressionJob
	err := db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &job, nil
}

// ListJobs returns the most recent jobs first
func (db *Database) ListJobs(ctx context.Context, limit int) ([]types.CompressionJob, error) {
	if limit <= 0 {
		limit = DefaultJobListLimit
	}
	if limit > MaxJobListLimit {
		limit = MaxJobListLimit
	}

	var jobs []types.CompressionJob
	err := db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
