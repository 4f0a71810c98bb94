package port

import (
	"context"

	"neurodb/internal/domain"
)

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// Extractor returns the plain text of a source file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// MetadataReader is best effort: missing fields get defaults instead of errors.
type MetadataReader interface {
	ReadMeta(ctx context.Context, path string) (domain.DocumentInfo, error)
}
