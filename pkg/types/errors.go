package types

import "errors"

var (
	// ErrNotFound is returned by the store for an id it does not hold
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID is returned for ids that are not a single flat file name
	ErrInvalidID = errors.New("invalid artifact id")

	// ErrInputNotFound means the input of a compression does not exist
	ErrInputNotFound = errors.New("input not found")

	// ErrInvalidRequest covers malformed or missing request parameters
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCompressionFailed means the engine exited with an error or wrote no output
	ErrCompressionFailed = errors.New("compression failed")

	// ErrTimeout marks an engine run that exceeded its wall-clock budget
	ErrTimeout = errors.New("compression timed out")

	// ErrAllPresetsFailed means no preset of a target search produced output
	ErrAllPresetsFailed = errors.New("all presets failed")

	// ErrStoreIO wraps filesystem failures in the artifact store
	ErrStoreIO = errors.New("artifact store i/o error")
)
