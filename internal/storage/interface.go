package storage

import (
	"context"
	"io"

	"github.com/lgulliver/pdfshrink/pkg/types"
)

// ArtifactStore is the single owner of artifact lifetime. Ids are flat names;
// every operation is visible to other callers as soon as it returns.
type ArtifactStore interface {
	// Put writes content under id, replacing any existing artifact
	Put(ctx context.Context, id string, content io.Reader) (*types.Artifact, error)

	// Get opens the artifact for reading
	Get(ctx context.Context, id string) (io.ReadCloser, *types.Artifact, error)

	// Stat returns size and modification time without opening the artifact
	Stat(ctx context.Context, id string) (*types.Artifact, error)

	// Size returns the artifact size in bytes
	Size(ctx context.Context, id string) (int64, error)

	// Exists reports whether id is present
	Exists(ctx context.Context, id string) (bool, error)

	// Rename atomically moves oldID to newID, overwriting newID if present
	Rename(ctx context.Context, oldID, newID string) error

	// Delete removes id; deleting a missing id is not an error
	Delete(ctx context.Context, id string) error

	// List enumerates artifacts whose id starts with prefix, in no particular order
	List(ctx context.Context, prefix string) ([]types.Artifact, error)

	// Path resolves id to a filesystem path for external tools
	Path(id string) (string, error)
}
