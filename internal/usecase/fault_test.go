package usecase

import (
	"context"
	"errors"
	"sync"

	"neurodb/internal/adapter/memstore"
	"neurodb/internal/domain"
	"neurodb/internal/port"
)

var errInjected = errors.New("injected failure")

// faultStore wraps a RecordStore and fails selected operations.
type faultStore struct {
	port.RecordStore

	mu             sync.Mutex
	failChunkIDs   map[uint64]bool
	ignoreDeletes  bool
	failDeleteFile bool
	failInsert     bool

	// insertBeforeFail chunks are written before an injected insert failure.
	insertBeforeFail int
}

func newFaultStore() *faultStore {
	return &faultStore{
		RecordStore:  memstore.NewMemoryStore(),
		failChunkIDs: make(map[uint64]bool),
	}
}

func (f *faultStore) failChunk(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failChunkIDs[id] = true
}

func (f *faultStore) DeleteChunk(ctx context.Context, id uint64) error {
	f.mu.Lock()
	fail, ignore := f.failChunkIDs[id], f.ignoreDeletes
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	if ignore {
		// reports success without deleting
		return nil
	}
	return f.RecordStore.DeleteChunk(ctx, id)
}

func (f *faultStore) DeleteFile(ctx context.Context, name string) error {
	if f.failDeleteFile {
		return errInjected
	}
	return f.RecordStore.DeleteFile(ctx, name)
}

func (f *faultStore) InsertChunks(ctx context.Context, chunks []domain.Chunk) ([]uint64, error) {
	if f.failInsert {
		n := f.insertBeforeFail
		if n > len(chunks) {
			n = len(chunks)
		}
		if n > 0 {
			if _, err := f.RecordStore.InsertChunks(ctx, chunks[:n]); err != nil {
				return nil, err
			}
		}
		return nil, errInjected
	}
	return f.RecordStore.InsertChunks(ctx, chunks)
}
