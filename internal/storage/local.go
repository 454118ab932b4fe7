package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/lgulliver/pdfshrink/pkg/utils"
	"github.com/rs/zerolog/log"
)

// LocalStorage implements ArtifactStore on a single flat directory
type LocalStorage struct {
	basePath string
	mutex    sync.RWMutex
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Error().Err(err).Str("path", basePath).Msg("failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	log.Info().Str("path", basePath).Msg("local storage initialized")
	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Path resolves id to its location on disk
func (ls *LocalStorage) Path(id string) (string, error) {
	if err := utils.ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(ls.basePath, id), nil
}

// Put streams content to a temporary file and renames it into place
func (ls *LocalStorage) Put(ctx context.Context, id string, content io.Reader) (*types.Artifact, error) {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath, err := ls.Path(id)
	if err != nil {
		return nil, err
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", fullPath, time.Now().UnixNano())
	tempFile, err := os.Create(tempPath)
	if err != nil {
		log.Error().Err(err).Str("id", id).Str("temp_path", tempPath).Msg("failed to create temporary file")
		return nil, fmt.Errorf("%w: failed to create temporary file: %w", types.ErrStoreIO, err)
	}

	defer func() {
		tempFile.Close()
		if _, err := os.Stat(tempPath); err == nil {
			os.Remove(tempPath)
		}
	}()

	bytesWritten, err := io.Copy(tempFile, content)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to write content to temporary file")
		return nil, fmt.Errorf("%w: failed to write content: %w", types.ErrStoreIO, err)
	}

	if err := tempFile.Sync(); err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to sync temporary file")
		return nil, fmt.Errorf("%w: failed to sync temporary file: %w", types.ErrStoreIO, err)
	}
	tempFile.Close()

	ls.mutex.Lock()
	err = os.Rename(tempPath, fullPath)
	ls.mutex.Unlock()
	if err != nil {
		log.Error().Err(err).Str("id", id).Str("temp_path", tempPath).Msg("failed to move temporary file to final location")
		return nil, fmt.Errorf("%w: failed to move file to final location: %w", types.ErrStoreIO, err)
	}

	log.Info().
		Str("id", id).
		Int64("bytes_written", bytesWritten).
		Dur("duration", time.Since(startTime)).
		Msg("artifact stored")

	return ls.Stat(ctx, id)
}

// Get opens an artifact for reading
func (ls *LocalStorage) Get(ctx context.Context, id string) (io.ReadCloser, *types.Artifact, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	fullPath, err := ls.Path(id)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("id", id).Msg("artifact not found")
			return nil, nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}
		log.Error().Err(err).Str("id", id).Msg("failed to open artifact")
		return nil, nil, fmt.Errorf("%w: failed to open artifact: %w", types.ErrStoreIO, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("%w: failed to stat artifact: %w", types.ErrStoreIO, err)
	}

	return file, artifactFromInfo(id, info), nil
}

// Stat returns artifact metadata
func (ls *LocalStorage) Stat(ctx context.Context, id string) (*types.Artifact, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath, err := ls.Path(id)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}
		log.Error().Err(err).Str("id", id).Msg("failed to get artifact info")
		return nil, fmt.Errorf("%w: failed to get artifact info: %w", types.ErrStoreIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return artifactFromInfo(id, info), nil
}

// Size returns the size of an artifact in bytes
func (ls *LocalStorage) Size(ctx context.Context, id string) (int64, error) {
	artifact, err := ls.Stat(ctx, id)
	if err != nil {
		return 0, err
	}
	return artifact.Size, nil
}

// Exists checks if an artifact exists
func (ls *LocalStorage) Exists(ctx context.Context, id string) (bool, error) {
	_, err := ls.Stat(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Rename moves oldID onto newID in one step
func (ls *LocalStorage) Rename(ctx context.Context, oldID, newID string) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	oldPath, err := ls.Path(oldID)
	if err != nil {
		return err
	}
	newPath, err := ls.Path(newID)
	if err != nil {
		return err
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", types.ErrNotFound, oldID)
		}
		log.Error().Err(err).Str("from", oldID).Str("to", newID).Msg("failed to rename artifact")
		return fmt.Errorf("%w: failed to rename artifact: %w", types.ErrStoreIO, err)
	}

	log.Debug().Str("from", oldID).Str("to", newID).Msg("artifact renamed")
	return nil
}

// Delete removes an artifact
func (ls *LocalStorage) Delete(ctx context.Context, id string) error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath, err := ls.Path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("id", id).Msg("artifact already deleted or does not exist")
			return nil
		}
		log.Error().Err(err).Str("id", id).Msg("failed to delete artifact")
		return fmt.Errorf("%w: failed to delete artifact: %w", types.ErrStoreIO, err)
	}

	log.Debug().Str("id", id).Msg("artifact deleted")
	return nil
}

// List returns the artifacts whose id starts with prefix
func (ls *LocalStorage) List(ctx context.Context, prefix string) ([]types.Artifact, error) {
	startTime := time.Now()
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entries, err := os.ReadDir(ls.basePath)
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("failed to list artifacts")
		return nil, fmt.Errorf("%w: failed to list artifacts: %w", types.ErrStoreIO, err)
	}

	artifacts := make([]types.Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if utils.ValidateID(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("%w: failed to stat %s: %w", types.ErrStoreIO, entry.Name(), err)
		}
		artifacts = append(artifacts, *artifactFromInfo(entry.Name(), info))
	}

	log.Debug().
		Str("prefix", prefix).
		Int("count", len(artifacts)).
		Dur("duration", time.Since(startTime)).
		Msg("artifacts listed")

	return artifacts, nil
}

func artifactFromInfo(id string, info os.FileInfo) *types.Artifact {
	return &types.Artifact{
		ID:         id,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}
}
