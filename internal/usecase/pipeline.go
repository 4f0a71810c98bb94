package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"neurodb/internal/domain"
	"neurodb/internal/port"
)

// Embedder is the gateway side the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, drafts []domain.ChunkDraft) ([][]float32, error)
}

// DefaultQueryLimit applies when a query asks for no explicit limit.
const DefaultQueryLimit = 5

// PipelineOptions configures NewPipeline. Zero values select defaults.
type PipelineOptions struct {
	DefaultLimit int
	// ReplaceExisting deletes a file's previous chunks when it is ingested
	// again. When false, every ingestion adds to the chunks already stored.
	ReplaceExisting bool

	Extractor      port.Extractor
	MetadataReader port.MetadataReader
	Logger         *slog.Logger

	now        func() time.Time
	newBatchID func() string
}

// Pipeline sequences chunking, embedding, persistence and search.
type Pipeline struct {
	store    *DocumentStore
	chunker  port.Chunker
	embedder Embedder
	searcher port.Searcher
	opts     PipelineOptions
	logger   *slog.Logger
}

func NewPipeline(store *DocumentStore, chunker port.Chunker, embedder Embedder, searcher port.Searcher, opts PipelineOptions) *Pipeline {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultQueryLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.newBatchID == nil {
		opts.newBatchID = func() string { return uuid.NewString() }
	}
	return &Pipeline{
		store:    store,
		chunker:  chunker,
		embedder: embedder,
		searcher: searcher,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// IngestResult describes one successful ingestion.
type IngestResult struct {
	FileName string
	BatchID  string
	ChunkIDs []uint64
	// Replaced counts previous chunks removed before writing.
	Replaced int
}

// IngestDocument chunks and embeds text, then stores the file record and its
// chunks. Nothing is written unless every chunk embedded successfully, and a
// failed write leaves an earlier version of the file as it was. With
// ReplaceExisting, chunks of earlier batches are removed once the new batch
// is stored.
func (p *Pipeline) IngestDocument(ctx context.Context, text string, meta domain.FileMeta) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document text is empty", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(meta.FileName) == "" {
		return nil, fmt.Errorf("%w: file name is required", domain.ErrInvalidInput)
	}
	name := meta.FileName

	drafts := p.chunker.Chunk(text, meta.Extra)
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: document %s produced no chunks", domain.ErrInvalidInput, name)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}
	if len(vectors) != len(drafts) {
		return nil, fmt.Errorf("ingest %s: got %d vectors for %d chunks", name, len(vectors), len(drafts))
	}

	result := &IngestResult{FileName: name, BatchID: p.opts.newBatchID()}
	now := p.opts.now()

	prior, err := p.store.GetFile(ctx, name)
	hadPrior := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}

	file := domain.File{
		Name:         name,
		Content:      meta.Content,
		Size:         meta.Size,
		LastModified: meta.LastModified,
		Title:        meta.Title,
		Author:       meta.Author,
		PageCount:    meta.PageCount,
		ContentType:  meta.ContentType,
		IngestedAt:   now,
	}
	if err := p.store.PutFile(ctx, file); err != nil {
		if rbErr := p.restoreFile(ctx, name, prior, hadPrior); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}

	chunks := make([]domain.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = domain.Chunk{
			Text:   d.Text,
			Vector: vectors[i],
			Metadata: domain.ChunkMetadata{
				FileName:   name,
				ChunkIndex: d.ChunkIndex,
				StartChar:  d.StartChar,
				EndChar:    d.EndChar,
				Timestamp:  now,
				BatchID:    result.BatchID,
				Extra:      d.Metadata,
			},
		}
	}

	ids, err := p.store.PutChunks(ctx, chunks)
	if err != nil {
		if rbErr := p.rollbackBatch(ctx, name, result.BatchID); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		if rbErr := p.restoreFile(ctx, name, prior, hadPrior); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}
	result.ChunkIDs = ids

	// the new batch is committed; earlier batches go only now
	if p.opts.ReplaceExisting {
		report, err := p.store.DeleteStaleChunks(ctx, name, result.BatchID)
		result.Replaced = report.ChunksDeleted
		if err != nil {
			return result, fmt.Errorf("replace previous chunks of %s: %w", name, err)
		}
	}

	p.logger.Info("ingested document", "file", name, "chunks", len(ids), "replaced", result.Replaced, "batch", result.BatchID)
	return result, nil
}

// restoreFile puts back the record a failed ingestion overwrote, or removes
// the record it created.
func (p *Pipeline) restoreFile(ctx context.Context, name string, prior domain.File, hadPrior bool) error {
	if hadPrior {
		if err := p.store.records.PutFile(ctx, prior); err != nil {
			return fmt.Errorf("restore file record %s: %w", name, err)
		}
		return nil
	}
	if err := p.store.records.DeleteFile(ctx, name); err != nil {
		return fmt.Errorf("remove file record %s: %w", name, err)
	}
	return nil
}

// rollbackBatch removes chunks of one batch that a failed write left behind.
func (p *Pipeline) rollbackBatch(ctx context.Context, name, batchID string) error {
	chunks, err := p.store.ChunksForFile(ctx, name)
	if err != nil {
		return fmt.Errorf("rollback batch %s: %w", batchID, err)
	}
	var errs []error
	for _, c := range chunks {
		if c.Metadata.BatchID != batchID {
			continue
		}
		if err := p.store.records.DeleteChunk(ctx, c.ID); err != nil {
			errs = append(errs, &domain.ChunkDeleteError{ID: c.ID, Err: err})
		}
	}
	return errors.Join(errs...)
}

// QueryDocuments embeds queryText and returns the limit best matches.
// limit <= 0 selects the configured default.
func (p *Pipeline) QueryDocuments(ctx context.Context, queryText string, limit int) (*domain.SearchOutput, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = p.opts.DefaultLimit
	}

	vec, err := p.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	out, err := p.searcher.Search(ctx, vec)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}
	if out.Skipped > 0 {
		p.logger.Warn("query skipped malformed chunks", "skipped", out.Skipped)
	}
	return out, nil
}

// IngestFile extracts path and ingests it under its base name.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	return p.IngestFileAs(ctx, path, filepath.Base(path))
}

// IngestFileAs extracts path and ingests it under name.
func (p *Pipeline) IngestFileAs(ctx context.Context, path, name string) (*IngestResult, error) {
	if p.opts.Extractor == nil || p.opts.MetadataReader == nil {
		return nil, errors.New("pipeline has no extractor configured")
	}

	text, err := p.opts.Extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	info, err := p.opts.MetadataReader.ReadMeta(ctx, path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	meta := domain.FileMeta{
		FileName:     name,
		Content:      content,
		Size:         info.FileSize,
		LastModified: info.LastModified,
		Title:        info.Title,
		Author:       info.Author,
		PageCount:    info.PageCount,
		ContentType:  info.ContentType,
		Extra:        map[string]string{"source_path": path},
	}
	return p.IngestDocument(ctx, text, meta)
}

// DeleteDocument removes a file and all of its chunks.
func (p *Pipeline) DeleteDocument(ctx context.Context, name string) (*DeleteReport, error) {
	return p.store.DeleteFile(ctx, name)
}
