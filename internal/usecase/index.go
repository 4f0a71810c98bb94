package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"neurodb/internal/port"
)

// IndexUseCase ingests every selected file under a directory.
type IndexUseCase struct {
	pipeline *Pipeline
	store    *DocumentStore
	walker   port.FileWalker
	logger   *slog.Logger
}

func NewIndexUseCase(pipeline *Pipeline, store *DocumentStore, walker port.FileWalker, logger *slog.Logger) *IndexUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexUseCase{
		pipeline: pipeline,
		store:    store,
		walker:   walker,
		logger:   logger,
	}
}

// IndexOptions tunes one directory run.
type IndexOptions struct {
	// Force re-ingests files whose modification time has not changed.
	Force bool
	// Prune deletes stored files that were not found under the root.
	Prune bool
	// Progress is called after each file.
	Progress func(path string, done, total int)
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesDeleted  int
	ChunksCreated int
	Errors        []string
}

// NameFor is the file name a path under root is stored as: the
// slash-separated relative path.
func NameFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// Index ingests files under root. Per-file failures are collected in the
// result and do not stop the run.
func (u *IndexUseCase) Index(ctx context.Context, root string, opts IndexOptions) (*IndexResult, error) {
	result := &IndexResult{}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	existing, err := u.store.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing files: %w", err)
	}
	modTimes := make(map[string]int64, len(existing))
	for _, f := range existing {
		modTimes[f.Name] = f.LastModified.Unix()
	}

	seen := make(map[string]bool, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		name := NameFor(root, file.Path)
		seen[name] = true

		if mod, ok := modTimes[name]; ok && !opts.Force && mod >= file.ModTime {
			result.FilesSkipped++
		} else if res, err := u.pipeline.IngestFileAs(ctx, file.Path, name); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", name, err))
			u.logger.Warn("ingest failed", "file", name, "error", err)
		} else {
			result.FilesIndexed++
			result.ChunksCreated += len(res.ChunkIDs)
		}

		if opts.Progress != nil {
			opts.Progress(file.Path, i+1, len(files))
		}
	}

	if opts.Prune {
		for _, f := range existing {
			if seen[f.Name] {
				continue
			}
			if _, err := u.store.DeleteFile(ctx, f.Name); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to delete %s: %v", f.Name, err))
				continue
			}
			result.FilesDeleted++
		}
	}

	u.logger.Info("indexed directory", "root", root,
		"indexed", result.FilesIndexed, "skipped", result.FilesSkipped, "deleted", result.FilesDeleted)
	return result, nil
}
