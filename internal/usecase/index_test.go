package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurodb/internal/adapter/fs"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func newIndexFixture(t *testing.T) (*IndexUseCase, *pipelineFixture) {
	f := newPipelineFixture(t, newFaultStore(), true)
	walker := fs.NewWalker([]string{"**/*.txt", "**/*.md"}, []string{".neurodb"})
	return NewIndexUseCase(f.pipeline, f.store, walker, nil), f
}

func fileNames(t *testing.T, f *pipelineFixture) []string {
	files, err := f.store.ListFiles(context.Background())
	require.NoError(t, err)
	names := make([]string, len(files))
	for i, file := range files {
		names[i] = file.Name
	}
	return names
}

func TestNameFor(t *testing.T) {
	root := filepath.Join("data", "docs")
	assert.Equal(t, "a.txt", NameFor(root, filepath.Join(root, "a.txt")))
	assert.Equal(t, "sub/b.md", NameFor(root, filepath.Join(root, "sub", "b.md")))
}

func TestIndex_IngestsSelectedFiles(t *testing.T) {
	ctx := context.Background()
	root := writeTree(t, map[string]string{
		"a.txt":          sentences("alpha", 3),
		"sub/b.md":       sentences("beta", 2),
		"image.png":      "not text",
		".neurodb/x.txt": "internal",
	})
	u, f := newIndexFixture(t)

	var progress []int
	res, err := u.Index(ctx, root, IndexOptions{
		Progress: func(path string, done, total int) {
			assert.Equal(t, 2, total)
			progress = append(progress, done)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesIndexed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []int{1, 2}, progress)
	assert.Greater(t, res.ChunksCreated, 2)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.md"}, fileNames(t, f))
}

func TestIndex_SkipsUnchangedUnlessForced(t *testing.T) {
	ctx := context.Background()
	root := writeTree(t, map[string]string{
		"a.txt": sentences("alpha", 3),
		"b.txt": sentences("beta", 3),
	})
	u, _ := newIndexFixture(t)

	_, err := u.Index(ctx, root, IndexOptions{})
	require.NoError(t, err)

	res, err := u.Index(ctx, root, IndexOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.FilesIndexed)
	assert.Equal(t, 2, res.FilesSkipped)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.txt"), later, later))
	res, err = u.Index(ctx, root, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesIndexed)
	assert.Equal(t, 1, res.FilesSkipped)

	res, err = u.Index(ctx, root, IndexOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesIndexed)
}

func TestIndex_Prune(t *testing.T) {
	ctx := context.Background()
	root := writeTree(t, map[string]string{
		"a.txt":     sentences("alpha", 3),
		"sub/b.txt": sentences("beta", 3),
	})
	u, f := newIndexFixture(t)

	_, err := u.Index(ctx, root, IndexOptions{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "sub", "b.txt")))

	res, err := u.Index(ctx, root, IndexOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.FilesDeleted)
	assert.Len(t, fileNames(t, f), 2)

	res, err = u.Index(ctx, root, IndexOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesDeleted)
	assert.Equal(t, []string{"a.txt"}, fileNames(t, f))

	ids, err := f.store.records.ChunkIDsForFile(ctx, "sub/b.txt")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndex_CollectsPerFileErrors(t *testing.T) {
	root := writeTree(t, map[string]string{
		"blank.txt": "   \n\n  ",
		"good.txt":  sentences("alpha", 2),
	})
	u, f := newIndexFixture(t)

	res, err := u.Index(context.Background(), root, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesIndexed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "blank.txt")
	assert.Equal(t, []string{"good.txt"}, fileNames(t, f))
}
