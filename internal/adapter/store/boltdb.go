package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"neurodb/internal/domain"
)

var (
	bucketFiles      = []byte("files")
	bucketChunks     = []byte("chunks")
	bucketFileChunks = []byte("file_chunks")
	bucketMeta       = []byte("meta")
)

// BoltStore keeps files and chunks in a single bbolt file. Chunk keys are
// big-endian sequence numbers so a cursor walks them in id order. The
// file_chunks bucket holds one nested bucket per file name whose keys are the
// ids of that file's chunks.
type BoltStore struct {
	db     *bbolt.DB
	path   string
	logger *slog.Logger
}

// BoltOptions configures NewBoltStore.
type BoltOptions struct {
	// LockTimeout bounds the wait for another process's file lock.
	LockTimeout time.Duration
	Logger      *slog.Logger
}

func NewBoltStore(path string, opts BoltOptions) (*BoltStore, error) {
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db %s: %v", domain.ErrStoreUnavailable, path, err)
	}

	s := &BoltStore{db: db, path: path, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for maintenance tooling and tests.
func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func chunkKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func chunkID(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

func (s *BoltStore) PutFile(ctx context.Context, file domain.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode file %s: %w", file.Name, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(file.Name), data)
	})
}

func (s *BoltStore) GetFile(ctx context.Context, name string) (domain.File, error) {
	var file domain.File
	if err := ctx.Err(); err != nil {
		return file, err
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("file %q: %w", name, domain.ErrNotFound)
		}
		return json.Unmarshal(data, &file)
	})
	return file, err
}

func (s *BoltStore) DeleteFile(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(name))
	})
}

func (s *BoltStore) ListFiles(ctx context.Context) ([]domain.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var files []domain.File
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var file domain.File
			if err := json.Unmarshal(v, &file); err != nil {
				s.logger.Warn("skipping undecodable file record", "name", string(k), "error", err)
				return nil
			}
			files = append(files, file)
			return nil
		})
	})
	return files, err
}

func (s *BoltStore) InsertChunk(ctx context.Context, chunk domain.Chunk) (uint64, error) {
	ids, err := s.InsertChunks(ctx, []domain.Chunk{chunk})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *BoltStore) InsertChunks(ctx context.Context, chunks []domain.Chunk) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(chunks))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		index := tx.Bucket(bucketFileChunks)
		for _, chunk := range chunks {
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			chunk.ID = id
			data, err := json.Marshal(chunk)
			if err != nil {
				return fmt.Errorf("encode chunk: %w", err)
			}
			key := chunkKey(id)
			if err := b.Put(key, data); err != nil {
				return err
			}
			if chunk.Metadata.FileName != "" {
				fc, err := index.CreateBucketIfNotExists([]byte(chunk.Metadata.FileName))
				if err != nil {
					return err
				}
				if err := fc.Put(key, nil); err != nil {
					return err
				}
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("inserted chunks", "count", len(ids))
	return ids, nil
}

// DeleteChunk removes the record and its index entry. Unknown ids are a no-op.
func (s *BoltStore) DeleteChunk(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		key := chunkKey(id)
		data := b.Get(key)
		if data == nil {
			return nil
		}

		var chunk domain.Chunk
		if err := json.Unmarshal(data, &chunk); err == nil && chunk.Metadata.FileName != "" {
			index := tx.Bucket(bucketFileChunks)
			name := []byte(chunk.Metadata.FileName)
			if fc := index.Bucket(name); fc != nil {
				if err := fc.Delete(key); err != nil {
					return err
				}
				if k, _ := fc.Cursor().First(); k == nil {
					if err := index.DeleteBucket(name); err != nil {
						return err
					}
				}
			}
		}
		return b.Delete(key)
	})
}

// ListChunks returns every record in id order. Records that fail to decode
// are returned with only their id so callers can count them as malformed.
func (s *BoltStore) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			chunks = append(chunks, s.decodeChunk(k, v))
			return nil
		})
	})
	return chunks, err
}

func (s *BoltStore) ChunkIDsForFile(ctx context.Context, fileName string) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		fc := tx.Bucket(bucketFileChunks).Bucket([]byte(fileName))
		if fc == nil {
			return nil
		}
		chunks := tx.Bucket(bucketChunks)
		return fc.ForEach(func(k, _ []byte) error {
			// stale index entries without a record are not chunks
			if chunks.Get(k) != nil {
				ids = append(ids, chunkID(k))
			}
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) ChunksForFile(ctx context.Context, fileName string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		fc := tx.Bucket(bucketFileChunks).Bucket([]byte(fileName))
		if fc == nil {
			return nil
		}
		b := tx.Bucket(bucketChunks)
		return fc.ForEach(func(k, _ []byte) error {
			if data := b.Get(k); data != nil {
				chunks = append(chunks, s.decodeChunk(k, data))
			}
			return nil
		})
	})
	return chunks, err
}

func (s *BoltStore) decodeChunk(key, data []byte) domain.Chunk {
	var chunk domain.Chunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		s.logger.Warn("undecodable chunk record", "id", chunkID(key), "error", err)
		return domain.Chunk{ID: chunkID(key)}
	}
	chunk.ID = chunkID(key)
	return chunk
}
