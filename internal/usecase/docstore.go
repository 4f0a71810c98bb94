package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"neurodb/internal/domain"
	"neurodb/internal/port"
)

// DocumentStore validates records and keeps chunks consistent with their
// files on top of a substrate that is only atomic per collection.
type DocumentStore struct {
	records port.RecordStore
	logger  *slog.Logger
}

func NewDocumentStore(records port.RecordStore, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{records: records, logger: logger}
}

// DeleteReport describes one cascading delete.
type DeleteReport struct {
	FileName      string
	ChunksFound   int
	ChunksDeleted int
	FailedIDs     []uint64
	// Remaining is the index count after the cascade; non-zero means orphans.
	Remaining int
}

// IntegrityReport is the outcome of Verify.
type IntegrityReport struct {
	Files     int
	Chunks    int
	Malformed []uint64
	// Orphans maps a missing file name to the ids still referencing it.
	Orphans map[string][]uint64
}

// OrphanCount is the number of chunks whose file record is missing.
func (r *IntegrityReport) OrphanCount() int {
	n := 0
	for _, ids := range r.Orphans {
		n += len(ids)
	}
	return n
}

// Healthy reports whether no orphans or malformed rows were found.
func (r *IntegrityReport) Healthy() bool {
	return len(r.Malformed) == 0 && len(r.Orphans) == 0
}

// Err returns nil for a healthy report. Otherwise it joins one
// OrphanChunksError per file name with an ErrMalformedRecord summary.
func (r *IntegrityReport) Err() error {
	names := make([]string, 0, len(r.Orphans))
	for name := range r.Orphans {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		errs = append(errs, &domain.OrphanChunksError{FileName: name, Count: len(r.Orphans[name])})
	}
	if len(r.Malformed) > 0 {
		errs = append(errs, fmt.Errorf("%w: %d chunk rows", domain.ErrMalformedRecord, len(r.Malformed)))
	}
	return errors.Join(errs...)
}

func (d *DocumentStore) PutFile(ctx context.Context, file domain.File) error {
	if strings.TrimSpace(file.Name) == "" {
		return fmt.Errorf("%w: file name is required", domain.ErrInvalidInput)
	}
	if err := d.records.PutFile(ctx, file); err != nil {
		return fmt.Errorf("put file %s: %w", file.Name, err)
	}
	d.logger.Debug("stored file", "name", file.Name, "size", file.Size)
	return nil
}

func (d *DocumentStore) GetFile(ctx context.Context, name string) (domain.File, error) {
	return d.records.GetFile(ctx, name)
}

func (d *DocumentStore) ListFiles(ctx context.Context) ([]domain.File, error) {
	return d.records.ListFiles(ctx)
}

// DeleteFile removes every chunk of name, then the file record, then checks
// the index again. Chunk failures do not stop their siblings. The call
// never reports success while chunks still reference name.
func (d *DocumentStore) DeleteFile(ctx context.Context, name string) (*DeleteReport, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: file name is required", domain.ErrInvalidInput)
	}
	report := &DeleteReport{FileName: name}

	ids, err := d.records.ChunkIDsForFile(ctx, name)
	if err != nil {
		return report, fmt.Errorf("look up chunks of %s: %w", name, err)
	}
	report.ChunksFound = len(ids)

	var errs []error
	for _, id := range ids {
		if err := d.records.DeleteChunk(ctx, id); err != nil {
			report.FailedIDs = append(report.FailedIDs, id)
			errs = append(errs, &domain.ChunkDeleteError{ID: id, Err: err})
			d.logger.Warn("chunk delete failed", "file", name, "id", id, "error", err)
			continue
		}
		report.ChunksDeleted++
	}

	if err := d.records.DeleteFile(ctx, name); err != nil {
		errs = append(errs, fmt.Errorf("delete file record %s: %w", name, err))
	}

	// verification runs even if earlier steps failed
	remaining, err := d.records.ChunkIDsForFile(ctx, name)
	if err != nil {
		errs = append(errs, fmt.Errorf("verify delete of %s: %w", name, err))
	} else {
		report.Remaining = len(remaining)
		if len(remaining) > 0 {
			d.logger.Warn("orphan chunks remain", "file", name, "count", len(remaining))
			errs = append(errs, &domain.OrphanChunksError{
				FileName:  name,
				Count:     len(remaining),
				FailedIDs: report.FailedIDs,
			})
		}
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	d.logger.Info("deleted file", "name", name, "chunks", report.ChunksDeleted)
	return report, nil
}

// DeleteStaleChunks removes every chunk of name whose batch id differs from
// keepBatch, then checks the index again like DeleteFile. The file record is
// kept.
func (d *DocumentStore) DeleteStaleChunks(ctx context.Context, name, keepBatch string) (*DeleteReport, error) {
	report := &DeleteReport{FileName: name}

	chunks, err := d.records.ChunksForFile(ctx, name)
	if err != nil {
		return report, fmt.Errorf("look up chunks of %s: %w", name, err)
	}

	var errs []error
	for _, c := range chunks {
		if c.Metadata.BatchID == keepBatch {
			continue
		}
		report.ChunksFound++
		if err := d.records.DeleteChunk(ctx, c.ID); err != nil {
			report.FailedIDs = append(report.FailedIDs, c.ID)
			errs = append(errs, &domain.ChunkDeleteError{ID: c.ID, Err: err})
			d.logger.Warn("chunk delete failed", "file", name, "id", c.ID, "error", err)
			continue
		}
		report.ChunksDeleted++
	}
	if report.ChunksFound == 0 {
		return report, nil
	}

	remaining, err := d.records.ChunksForFile(ctx, name)
	if err != nil {
		errs = append(errs, fmt.Errorf("verify delete of %s: %w", name, err))
	} else {
		for _, c := range remaining {
			if c.Metadata.BatchID != keepBatch {
				report.Remaining++
			}
		}
		if report.Remaining > 0 {
			d.logger.Warn("stale chunks remain", "file", name, "count", report.Remaining)
			errs = append(errs, &domain.OrphanChunksError{
				FileName:  name,
				Count:     report.Remaining,
				FailedIDs: report.FailedIDs,
			})
		}
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	d.logger.Debug("deleted stale chunks", "file", name, "chunks", report.ChunksDeleted)
	return report, nil
}

func validateChunk(c domain.Chunk) error {
	switch {
	case strings.TrimSpace(c.Text) == "":
		return fmt.Errorf("%w: chunk text is required", domain.ErrInvalidInput)
	case len(c.Vector) == 0:
		return fmt.Errorf("%w: chunk vector is required", domain.ErrInvalidInput)
	case c.Metadata.FileName == "":
		return fmt.Errorf("%w: chunk file name is required", domain.ErrInvalidInput)
	}
	return nil
}

// requireFile rejects chunks whose file record does not exist.
func (d *DocumentStore) requireFile(ctx context.Context, name string) error {
	_, err := d.records.GetFile(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: chunk references unknown file %q: %w", domain.ErrInvalidInput, name, err)
	}
	if err != nil {
		return fmt.Errorf("look up file %s: %w", name, err)
	}
	return nil
}

// PutChunk inserts a new chunk and returns its id. Existing records are
// never overwritten. The chunk's file record must already exist.
func (d *DocumentStore) PutChunk(ctx context.Context, chunk domain.Chunk) (uint64, error) {
	if err := validateChunk(chunk); err != nil {
		return 0, err
	}
	if err := d.requireFile(ctx, chunk.Metadata.FileName); err != nil {
		return 0, err
	}
	id, err := d.records.InsertChunk(ctx, chunk)
	if err != nil {
		return 0, fmt.Errorf("insert chunk: %w", err)
	}
	return id, nil
}

// PutChunks validates every chunk and checks each referenced file once
// before inserting all of them in one transaction.
func (d *DocumentStore) PutChunks(ctx context.Context, chunks []domain.Chunk) ([]uint64, error) {
	for i, c := range chunks {
		if err := validateChunk(c); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	checked := make(map[string]bool)
	for _, c := range chunks {
		name := c.Metadata.FileName
		if checked[name] {
			continue
		}
		if err := d.requireFile(ctx, name); err != nil {
			return nil, err
		}
		checked[name] = true
	}
	ids, err := d.records.InsertChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("insert chunks: %w", err)
	}
	return ids, nil
}

// ListChunks returns records exactly as stored, malformed ones included.
func (d *DocumentStore) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	return d.records.ListChunks(ctx)
}

func (d *DocumentStore) ChunksForFile(ctx context.Context, name string) ([]domain.Chunk, error) {
	return d.records.ChunksForFile(ctx, name)
}

// Verify scans both collections for chunks without a file record and for
// malformed chunk rows.
func (d *DocumentStore) Verify(ctx context.Context) (*IntegrityReport, error) {
	files, err := d.records.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	chunks, err := d.records.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	known := make(map[string]struct{}, len(files))
	for _, f := range files {
		known[f.Name] = struct{}{}
	}

	report := &IntegrityReport{
		Files:   len(files),
		Chunks:  len(chunks),
		Orphans: make(map[string][]uint64),
	}
	for _, c := range chunks {
		if validateChunk(c) != nil {
			report.Malformed = append(report.Malformed, c.ID)
			if c.Metadata.FileName == "" {
				continue
			}
		}
		if _, ok := known[c.Metadata.FileName]; !ok {
			report.Orphans[c.Metadata.FileName] = append(report.Orphans[c.Metadata.FileName], c.ID)
		}
	}
	return report, nil
}

// Repair cascades a delete over every orphaned file name and deletes
// malformed rows that reference no file. It returns the report that was
// acted on.
func (d *DocumentStore) Repair(ctx context.Context) (*IntegrityReport, error) {
	report, err := d.Verify(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(report.Orphans))
	for name := range report.Orphans {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if _, err := d.DeleteFile(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}

	orphaned := make(map[uint64]struct{})
	for _, ids := range report.Orphans {
		for _, id := range ids {
			orphaned[id] = struct{}{}
		}
	}
	for _, id := range report.Malformed {
		if _, ok := orphaned[id]; ok {
			continue
		}
		if err := d.records.DeleteChunk(ctx, id); err != nil {
			errs = append(errs, &domain.ChunkDeleteError{ID: id, Err: err})
		}
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	d.logger.Info("repaired store", "orphans", report.OrphanCount(), "malformed", len(report.Malformed))
	return report, nil
}

// Stats counts records. Dimension is taken from the first chunk with a vector.
func (d *DocumentStore) Stats(ctx context.Context) (domain.Stats, error) {
	files, err := d.records.ListFiles(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("list files: %w", err)
	}
	chunks, err := d.records.ListChunks(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("list chunks: %w", err)
	}

	stats := domain.Stats{Files: len(files), Chunks: len(chunks)}
	for _, c := range chunks {
		if len(c.Vector) > 0 {
			stats.Dimension = len(c.Vector)
			break
		}
	}
	return stats, nil
}
