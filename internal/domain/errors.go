package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a request rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")

	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable means the persistence substrate could not be opened or used.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMalformedRecord marks a stored chunk missing text, vector or file name.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrProviderInit means the embedding provider could not be constructed.
	ErrProviderInit = errors.New("embedding provider initialization failed")
)

// ExtractionError is returned when text cannot be extracted from a source file.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError carries the index of the chunk the provider failed on.
type EmbeddingError struct {
	Index int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed chunk %d: %v", e.Index, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ChunkDeleteError reports a single chunk that could not be deleted.
type ChunkDeleteError struct {
	ID  uint64
	Err error
}

func (e *ChunkDeleteError) Error() string {
	return fmt.Sprintf("delete chunk %d: %v", e.ID, e.Err)
}

func (e *ChunkDeleteError) Unwrap() error { return e.Err }

// OrphanChunksError reports chunk records still referencing FileName after a
// cascading delete.
type OrphanChunksError struct {
	FileName  string
	Count     int
	FailedIDs []uint64
}

func (e *OrphanChunksError) Error() string {
	return fmt.Sprintf("%d orphan chunks remain for file %q", e.Count, e.FileName)
}
