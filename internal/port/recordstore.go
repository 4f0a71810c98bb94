package port

import (
	"context"

	"neurodb/internal/domain"
)

// RecordStore is the persistence substrate: two collections, files keyed by
// name and chunks keyed by an auto-increment id, plus a chunk-by-file-name
// index. Each call is atomic on one collection only.
type RecordStore interface {
	PutFile(ctx context.Context, file domain.File) error

	// GetFile returns domain.ErrNotFound for an unknown name.
	GetFile(ctx context.Context, name string) (domain.File, error)

	DeleteFile(ctx context.Context, name string) error

	ListFiles(ctx context.Context) ([]domain.File, error)

	// InsertChunk stores a new record and returns its freshly issued id.
	// The chunk's ID field is ignored.
	InsertChunk(ctx context.Context, chunk domain.Chunk) (uint64, error)

	// InsertChunks stores all records in one transaction.
	InsertChunks(ctx context.Context, chunks []domain.Chunk) ([]uint64, error)

	DeleteChunk(ctx context.Context, id uint64) error

	// ListChunks returns every chunk in ascending id order.
	ListChunks(ctx context.Context) ([]domain.Chunk, error)

	// ChunkIDsForFile looks up the fileName index.
	ChunkIDsForFile(ctx context.Context, fileName string) ([]uint64, error)

	ChunksForFile(ctx context.Context, fileName string) ([]domain.Chunk, error)

	Close() error
}
