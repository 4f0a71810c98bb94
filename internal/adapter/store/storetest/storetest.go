// Package storetest holds the behaviour every port.RecordStore must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurodb/internal/domain"
	"neurodb/internal/port"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) port.RecordStore

// Run executes the conformance suite against the stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s port.RecordStore)
	}{
		{"FileUpsert", testFileUpsert},
		{"FileNotFound", testFileNotFound},
		{"DeleteFileIdempotent", testDeleteFileIdempotent},
		{"FileRoundTrip", testFileRoundTrip},
		{"ChunkIDsMonotonic", testChunkIDsMonotonic},
		{"ChunkRoundTrip", testChunkRoundTrip},
		{"ListChunksInIDOrder", testListChunksInIDOrder},
		{"FileIndex", testFileIndex},
		{"DeleteChunkUpdatesIndex", testDeleteChunkUpdatesIndex},
		{"DeleteUnknownChunk", testDeleteUnknownChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer func() { assert.NoError(t, s.Close()) }()
			tt.fn(t, s)
		})
	}
}

func chunkFor(file, text string, index int) domain.Chunk {
	return domain.Chunk{
		Text:   text,
		Vector: []float32{float32(index), 1, 0.5},
		Metadata: domain.ChunkMetadata{
			FileName:   file,
			ChunkIndex: index,
			StartChar:  index * 10,
			EndChar:    index*10 + len(text),
			Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		},
	}
}

func testFileUpsert(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	require.NoError(t, s.PutFile(ctx, domain.File{Name: "a.txt", Size: 1, Title: "first"}))
	require.NoError(t, s.PutFile(ctx, domain.File{Name: "a.txt", Size: 2, Title: "second"}))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "second", files[0].Title)
	assert.Equal(t, int64(2), files[0].Size)
}

func testFileNotFound(t *testing.T, s port.RecordStore) {
	_, err := s.GetFile(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testDeleteFileIdempotent(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	require.NoError(t, s.PutFile(ctx, domain.File{Name: "a.txt"}))
	require.NoError(t, s.DeleteFile(ctx, "a.txt"))
	require.NoError(t, s.DeleteFile(ctx, "a.txt"))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func testFileRoundTrip(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	modified := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	in := domain.File{
		Name:         "report.pdf",
		Content:      []byte{0x25, 0x50, 0x44, 0x46},
		Size:         4,
		LastModified: modified,
		Title:        "Report",
		Author:       "Unknown",
		PageCount:    3,
		ContentType:  "application/pdf",
	}
	require.NoError(t, s.PutFile(ctx, in))

	out, err := s.GetFile(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, in.Content, out.Content)
	assert.Equal(t, in.PageCount, out.PageCount)
	assert.Equal(t, in.Author, out.Author)
	assert.True(t, modified.Equal(out.LastModified), "last modified: %v", out.LastModified)
	assert.True(t, out.IngestedAt.IsZero())
}

func testChunkIDsMonotonic(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	ids, err := s.InsertChunks(ctx, []domain.Chunk{
		chunkFor("a.txt", "one", 0),
		chunkFor("a.txt", "two", 1),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])

	require.NoError(t, s.DeleteChunk(ctx, ids[1]))
	next, err := s.InsertChunk(ctx, chunkFor("a.txt", "three", 2))
	require.NoError(t, err)
	assert.Greater(t, next, ids[1], "ids must never be reused")
}

func testChunkRoundTrip(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	in := chunkFor("a.txt", "hello world", 4)
	in.Metadata.BatchID = "batch-1"
	in.Metadata.Extra = map[string]string{"lang": "en"}
	in.ID = 999 // ignored

	id, err := s.InsertChunk(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, uint64(999), id)

	chunks, err := s.ListChunks(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	out := chunks[0]
	assert.Equal(t, id, out.ID)
	assert.Equal(t, in.Text, out.Text)
	assert.Equal(t, in.Vector, out.Vector)
	assert.Equal(t, in.Metadata.FileName, out.Metadata.FileName)
	assert.Equal(t, in.Metadata.ChunkIndex, out.Metadata.ChunkIndex)
	assert.Equal(t, in.Metadata.StartChar, out.Metadata.StartChar)
	assert.Equal(t, in.Metadata.EndChar, out.Metadata.EndChar)
	assert.Equal(t, "batch-1", out.Metadata.BatchID)
	assert.Equal(t, map[string]string{"lang": "en"}, out.Metadata.Extra)
	assert.True(t, in.Metadata.Timestamp.Equal(out.Metadata.Timestamp))
}

func testListChunksInIDOrder(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	var want []uint64
	for i := 0; i < 12; i++ {
		id, err := s.InsertChunk(ctx, chunkFor("f.txt", "text", i))
		require.NoError(t, err)
		want = append(want, id)
	}

	chunks, err := s.ListChunks(ctx)
	require.NoError(t, err)
	got := make([]uint64, len(chunks))
	for i, c := range chunks {
		got[i] = c.ID
	}
	assert.Equal(t, want, got)
}

func testFileIndex(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	aIDs, err := s.InsertChunks(ctx, []domain.Chunk{chunkFor("a.txt", "a0", 0), chunkFor("a.txt", "a1", 1)})
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, chunkFor("b.txt", "b0", 0))
	require.NoError(t, err)

	ids, err := s.ChunkIDsForFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.ElementsMatch(t, aIDs, ids)

	chunks, err := s.ChunksForFile(ctx, "b.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "b0", chunks[0].Text)

	none, err := s.ChunkIDsForFile(ctx, "missing.txt")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDeleteChunkUpdatesIndex(t *testing.T, s port.RecordStore) {
	ctx := context.Background()
	ids, err := s.InsertChunks(ctx, []domain.Chunk{chunkFor("a.txt", "a0", 0), chunkFor("a.txt", "a1", 1)})
	require.NoError(t, err)

	require.NoError(t, s.DeleteChunk(ctx, ids[0]))
	remaining, err := s.ChunkIDsForFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []uint64{ids[1]}, remaining)

	require.NoError(t, s.DeleteChunk(ctx, ids[1]))
	remaining, err = s.ChunkIDsForFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	all, err := s.ListChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testDeleteUnknownChunk(t *testing.T, s port.RecordStore) {
	assert.NoError(t, s.DeleteChunk(context.Background(), 12345))
}
