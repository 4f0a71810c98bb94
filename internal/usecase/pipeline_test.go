package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurodb/internal/adapter/chunker"
	"neurodb/internal/adapter/extract"
	"neurodb/internal/adapter/retriever"
	"neurodb/internal/domain"
	"neurodb/internal/port"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// keywordEmbedder maps text onto two axes by keyword so rankings are exact.
type keywordEmbedder struct {
	failAt int
	calls  int
}

func vectorFor(text string) []float32 {
	switch {
	case strings.Contains(text, "alpha"):
		return []float32{1, 0}
	case strings.Contains(text, "beta"):
		return []float32{0, 1}
	default:
		return []float32{0.5, 0.5}
	}
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return vectorFor(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, drafts []domain.ChunkDraft) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(drafts))
	for i, d := range drafts {
		if e.failAt >= 0 && i == e.failAt {
			return nil, &domain.EmbeddingError{Index: i, Err: errInjected}
		}
		out[i] = vectorFor(d.Text)
	}
	return out, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    *DocumentStore
	embedder *keywordEmbedder
	chunker  *chunker.TextChunker
}

func newPipelineFixture(t *testing.T, records port.RecordStore, replace bool) *pipelineFixture {
	t.Helper()
	store := NewDocumentStore(records, nil)
	emb := &keywordEmbedder{failAt: -1}
	ch := chunker.NewTextChunker(40, 0)
	batch := 0
	p := NewPipeline(store, ch, emb, retriever.NewSemanticRetriever(store, nil), PipelineOptions{
		ReplaceExisting: replace,
		Extractor:       extract.NewExtractor(),
		MetadataReader:  extract.NewMetadataReader(),
		now:             func() time.Time { return testNow },
		newBatchID: func() string {
			batch++
			return fmt.Sprintf("batch-%d", batch)
		},
	})
	return &pipelineFixture{pipeline: p, store: store, embedder: emb, chunker: ch}
}

func sentences(word string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "The %s fact number %d. ", word, i)
	}
	return b.String()
}

func TestPipeline_IngestDocument(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)
	text := sentences("alpha", 5)
	want := f.chunker.Chunk(text, nil)
	require.Greater(t, len(want), 2)

	res, err := f.pipeline.IngestDocument(ctx, text, domain.FileMeta{FileName: "a.txt", Size: 10, Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", res.FileName)
	assert.Equal(t, "batch-1", res.BatchID)
	assert.Len(t, res.ChunkIDs, len(want))
	assert.Zero(t, res.Replaced)

	file, err := f.store.GetFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "A", file.Title)
	assert.True(t, testNow.Equal(file.IngestedAt))

	chunks, err := f.store.ChunksForFile(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, len(want))
	for i, c := range chunks {
		assert.Equal(t, want[i].Text, c.Text)
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, want[i].StartChar, c.Metadata.StartChar)
		assert.Equal(t, "batch-1", c.Metadata.BatchID)
		assert.True(t, testNow.Equal(c.Metadata.Timestamp))
		assert.Equal(t, []float32{1, 0}, c.Vector)
	}
}

func TestPipeline_IngestRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)

	_, err := f.pipeline.IngestDocument(ctx, "  \n\t", domain.FileMeta{FileName: "a.txt"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.pipeline.IngestDocument(ctx, "some text", domain.FileMeta{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Zero(t, f.embedder.calls)
	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
}

func TestPipeline_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)
	f.embedder.failAt = 2

	_, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 6), domain.FileMeta{FileName: "a.txt"})
	require.Error(t, err)
	var embErr *domain.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, 2, embErr.Index)

	_, err = f.store.GetFile(ctx, "a.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	chunks, err := f.store.ListChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPipeline_FailedReingestKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)

	first, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 4), domain.FileMeta{FileName: "a.txt"})
	require.NoError(t, err)

	f.embedder.failAt = 0
	_, err = f.pipeline.IngestDocument(ctx, sentences("beta", 4), domain.FileMeta{FileName: "a.txt"})
	require.Error(t, err)

	ids, err := f.store.records.ChunkIDsForFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.ElementsMatch(t, first.ChunkIDs, ids)
}

func TestPipeline_ReingestReplacesChunks(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)

	first, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 4), domain.FileMeta{FileName: "a.txt", Title: "v1"})
	require.NoError(t, err)
	second, err := f.pipeline.IngestDocument(ctx, sentences("beta", 3), domain.FileMeta{FileName: "a.txt", Title: "v2"})
	require.NoError(t, err)
	assert.Equal(t, len(first.ChunkIDs), second.Replaced)

	files, err := f.store.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "v2", files[0].Title)

	chunks, err := f.store.ChunksForFile(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, len(second.ChunkIDs))
	for _, c := range chunks {
		assert.Equal(t, "batch-2", c.Metadata.BatchID)
		assert.Contains(t, c.Text, "beta")
	}
}

func TestPipeline_ReingestWithoutReplaceKeepsBothSets(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), false)

	first, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 4), domain.FileMeta{FileName: "a.txt"})
	require.NoError(t, err)
	second, err := f.pipeline.IngestDocument(ctx, sentences("beta", 3), domain.FileMeta{FileName: "a.txt"})
	require.NoError(t, err)
	assert.Zero(t, second.Replaced)

	files, err := f.store.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	ids, err := f.store.records.ChunkIDsForFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.ElementsMatch(t, append(append([]uint64{}, first.ChunkIDs...), second.ChunkIDs...), ids)
}

func TestPipeline_ChunkWriteFailureRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	faults := newFaultStore()
	f := newPipelineFixture(t, faults, false)

	kept, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 3), domain.FileMeta{FileName: "a.txt"})
	require.NoError(t, err)

	faults.failInsert = true
	faults.insertBeforeFail = 2
	_, err = f.pipeline.IngestDocument(ctx, sentences("beta", 5), domain.FileMeta{FileName: "a.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	// the partial batch is gone, the earlier batch survives
	ids, err := f.store.records.ChunkIDsForFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.ElementsMatch(t, kept.ChunkIDs, ids)
}

func TestPipeline_FailedReplaceWriteKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	faults := newFaultStore()
	f := newPipelineFixture(t, faults, true)

	first, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 3), domain.FileMeta{FileName: "a.txt", Title: "v1"})
	require.NoError(t, err)

	faults.failInsert = true
	faults.insertBeforeFail = 2
	_, err = f.pipeline.IngestDocument(ctx, sentences("beta", 5), domain.FileMeta{FileName: "a.txt", Title: "v2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	file, err := f.store.GetFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v1", file.Title)

	chunks, err := f.store.ChunksForFile(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, chunks, len(first.ChunkIDs))
	for _, c := range chunks {
		assert.Equal(t, "batch-1", c.Metadata.BatchID)
	}
}

func TestPipeline_FailedFirstWriteLeavesNoFile(t *testing.T) {
	ctx := context.Background()
	faults := newFaultStore()
	f := newPipelineFixture(t, faults, true)
	faults.failInsert = true

	_, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 3), domain.FileMeta{FileName: "a.txt"})
	require.Error(t, err)

	_, err = f.store.GetFile(ctx, "a.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	report, err := f.store.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
}

func TestPipeline_StaleChunkCleanupFailureIsReported(t *testing.T) {
	ctx := context.Background()
	faults := newFaultStore()
	f := newPipelineFixture(t, faults, true)

	first, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 3), domain.FileMeta{FileName: "a.txt"})
	require.NoError(t, err)
	faults.failChunk(first.ChunkIDs[0])

	res, err := f.pipeline.IngestDocument(ctx, sentences("beta", 2), domain.FileMeta{FileName: "a.txt"})
	var orphans *domain.OrphanChunksError
	require.ErrorAs(t, err, &orphans)
	assert.Equal(t, []uint64{first.ChunkIDs[0]}, orphans.FailedIDs)

	// the new version is stored even though one old chunk survived
	require.NotNil(t, res)
	assert.Equal(t, len(first.ChunkIDs)-1, res.Replaced)
	ids, err := f.store.records.ChunkIDsForFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.ElementsMatch(t, append([]uint64{first.ChunkIDs[0]}, res.ChunkIDs...), ids)
}

func TestPipeline_FirstIngestDeletesNothing(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := NewDocumentStore(newFaultStore(), logger)
	p := NewPipeline(store, chunker.NewTextChunker(40, 0), &keywordEmbedder{failAt: -1},
		retriever.NewSemanticRetriever(store, logger), PipelineOptions{ReplaceExisting: true, Logger: logger})

	res, err := p.IngestDocument(ctx, sentences("alpha", 2), domain.FileMeta{FileName: "new.txt"})
	require.NoError(t, err)
	assert.Zero(t, res.Replaced)
	assert.NotContains(t, logs.String(), "deleted")
	assert.Contains(t, logs.String(), "ingested document")
}

func TestPipeline_QueryDocuments(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)

	_, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 4), domain.FileMeta{FileName: "alpha.txt"})
	require.NoError(t, err)
	_, err = f.pipeline.IngestDocument(ctx, sentences("beta", 4), domain.FileMeta{FileName: "beta.txt"})
	require.NoError(t, err)

	out, err := f.pipeline.QueryDocuments(ctx, "tell me about alpha", 2)
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	for _, r := range out.Results {
		assert.Equal(t, "alpha.txt", r.FileName)
		assert.InDelta(t, 1.0, r.Similarity, 1e-9)
	}

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	require.Greater(t, stats.Chunks, DefaultQueryLimit)

	out, err = f.pipeline.QueryDocuments(ctx, "beta", 0)
	require.NoError(t, err)
	assert.Len(t, out.Results, DefaultQueryLimit)
	assert.Equal(t, stats.Chunks, out.Scanned)
	assert.Equal(t, "beta.txt", out.Results[0].FileName)

	_, err = f.pipeline.QueryDocuments(ctx, "   ", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPipeline_QueryEmptyStore(t *testing.T) {
	f := newPipelineFixture(t, newFaultStore(), true)
	out, err := f.pipeline.QueryDocuments(context.Background(), "alpha", 3)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}

func TestPipeline_IngestFile(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)

	path := filepath.Join(t.TempDir(), "notes.txt")
	content := sentences("alpha", 3)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	res, err := f.pipeline.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", res.FileName)

	file, err := f.store.GetFile(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte(content), file.Content)
	assert.Equal(t, int64(len(content)), file.Size)
	assert.Equal(t, "notes.txt", file.Title)
	assert.Equal(t, extract.UnknownAuthor, file.Author)
	assert.Equal(t, extract.ContentType(path), file.ContentType)
	assert.False(t, file.LastModified.IsZero())

	chunks, err := f.store.ChunksForFile(ctx, "notes.txt")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, path, chunks[0].Metadata.Extra["source_path"])
}

func TestPipeline_IngestFileMissing(t *testing.T) {
	f := newPipelineFixture(t, newFaultStore(), true)
	_, err := f.pipeline.IngestFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	var extractErr *domain.ExtractionError
	assert.True(t, errors.As(err, &extractErr))
}

func TestPipeline_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, newFaultStore(), true)
	res, err := f.pipeline.IngestDocument(ctx, sentences("alpha", 3), domain.FileMeta{FileName: "a.txt"})
	require.NoError(t, err)

	report, err := f.pipeline.DeleteDocument(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, len(res.ChunkIDs), report.ChunksDeleted)

	out, err := f.pipeline.QueryDocuments(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}
