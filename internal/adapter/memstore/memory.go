package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"neurodb/internal/domain"
)

// MemoryStore is an in-process RecordStore. Ids start at 1 and are never
// reused, matching the persistent substrates.
type MemoryStore struct {
	mu         sync.RWMutex
	files      map[string]domain.File
	chunks     map[uint64]domain.Chunk
	fileChunks map[string]map[uint64]struct{}
	nextID     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:      make(map[string]domain.File),
		chunks:     make(map[uint64]domain.Chunk),
		fileChunks: make(map[string]map[uint64]struct{}),
	}
}

func (s *MemoryStore) PutFile(ctx context.Context, file domain.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.Name] = cloneFile(file)
	return nil
}

func (s *MemoryStore) GetFile(ctx context.Context, name string) (domain.File, error) {
	if err := ctx.Err(); err != nil {
		return domain.File{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.files[name]
	if !ok {
		return domain.File{}, fmt.Errorf("file %q: %w", name, domain.ErrNotFound)
	}
	return cloneFile(file), nil
}

func (s *MemoryStore) DeleteFile(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, name)
	return nil
}

// ListFiles returns files sorted by name.
func (s *MemoryStore) ListFiles(ctx context.Context) ([]domain.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]domain.File, 0, len(s.files))
	for _, file := range s.files {
		files = append(files, cloneFile(file))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *MemoryStore) InsertChunk(ctx context.Context, chunk domain.Chunk) (uint64, error) {
	ids, err := s.InsertChunks(ctx, []domain.Chunk{chunk})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *MemoryStore) InsertChunks(ctx context.Context, chunks []domain.Chunk) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint64, 0, len(chunks))
	for _, chunk := range chunks {
		s.nextID++
		chunk.ID = s.nextID
		s.chunks[chunk.ID] = cloneChunk(chunk)
		if name := chunk.Metadata.FileName; name != "" {
			set, ok := s.fileChunks[name]
			if !ok {
				set = make(map[uint64]struct{})
				s.fileChunks[name] = set
			}
			set[chunk.ID] = struct{}{}
		}
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}

func (s *MemoryStore) DeleteChunk(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return nil
	}
	if set, ok := s.fileChunks[chunk.Metadata.FileName]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.fileChunks, chunk.Metadata.FileName)
		}
	}
	delete(s.chunks, id)
	return nil
}

func (s *MemoryStore) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, cloneChunk(chunk))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}

func (s *MemoryStore) ChunkIDsForFile(ctx context.Context, fileName string) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idsLocked(fileName), nil
}

func (s *MemoryStore) ChunksForFile(ctx context.Context, fileName string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.idsLocked(fileName)
	chunks := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		chunks = append(chunks, cloneChunk(s.chunks[id]))
	}
	return chunks, nil
}

func (s *MemoryStore) idsLocked(fileName string) []uint64 {
	set := s.fileChunks[fileName]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneFile(f domain.File) domain.File {
	if f.Content != nil {
		f.Content = append([]byte(nil), f.Content...)
	}
	return f
}

func cloneChunk(c domain.Chunk) domain.Chunk {
	if c.Vector != nil {
		c.Vector = append([]float32(nil), c.Vector...)
	}
	if c.Metadata.Extra != nil {
		extra := make(map[string]string, len(c.Metadata.Extra))
		for k, v := range c.Metadata.Extra {
			extra[k] = v
		}
		c.Metadata.Extra = extra
	}
	return c
}
