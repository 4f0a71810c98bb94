package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"neurodb/config"
	"neurodb/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// ComputeConfigHash fingerprints the settings that shape stored vectors and
// chunk boundaries. A different hash means existing chunks were produced
// under other settings.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
		EmbProvider  string `json:"emb_provider"`
		EmbModel     string `json:"emb_model"`
		EmbDimension int    `json:"emb_dimension"`
	}{
		ChunkSize:    cfg.Chunk.Size,
		ChunkOverlap: cfg.Chunk.Overlap,
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
		EmbDimension: cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the state of an opened store relative to the
// running configuration.
type MigrationResult struct {
	Version       int
	ConfigChanged bool
	StoredHash    string
	CurrentHash   string
	Reason        string
}

// Versioned is implemented by substrates that track a schema version and a
// config fingerprint.
type Versioned interface {
	SchemaInfo(ctx context.Context) (*SchemaInfo, error)
	SetConfigHash(ctx context.Context, hash string) error
}

// CheckMigration compares the stamped fingerprint with cfg. It never
// modifies the store.
func CheckMigration(ctx context.Context, v Versioned, cfg *config.Config) (*MigrationResult, error) {
	info, err := v.SchemaInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		Version:     info.Version,
		StoredHash:  info.ConfigHash,
		CurrentHash: ComputeConfigHash(cfg),
	}
	if info.ConfigHash != "" && info.ConfigHash != result.CurrentHash {
		result.ConfigChanged = true
		result.Reason = "chunking or embedding configuration changed since the store was written; re-ingest to rebuild vectors"
	}
	return result, nil
}

// StampConfig records the fingerprint of cfg if none is stored yet.
func StampConfig(ctx context.Context, v Versioned, cfg *config.Config) error {
	info, err := v.SchemaInfo(ctx)
	if err != nil {
		return err
	}
	if info.ConfigHash != "" {
		return nil
	}
	return v.SetConfigHash(ctx, ComputeConfigHash(cfg))
}

// SchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) SchemaInfo(ctx context.Context) (*SchemaInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		version, err := readVersion(tx)
		if err != nil {
			return err
		}
		info.Version = version
		if b := tx.Bucket(bucketMeta); b != nil {
			info.ConfigHash = string(b.Get(keyConfigHash))
		}
		return nil
	})
	return &info, err
}

func (s *BoltStore) SetConfigHash(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyConfigHash, []byte(hash))
	})
}

func readVersion(tx *bbolt.Tx) (int, error) {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return 0, nil
	}
	data := b.Get(keySchemaVersion)
	if data == nil {
		return 0, nil
	}
	var version int
	if err := json.Unmarshal(data, &version); err != nil {
		return 0, fmt.Errorf("decode schema version: %w", err)
	}
	return version, nil
}

// migrate brings the file up to CurrentSchemaVersion, one step per
// transaction. Files written by a newer version are refused.
func (s *BoltStore) migrate() error {
	var version int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		v, err := readVersion(tx)
		version = v
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: read schema version: %v", domain.ErrStoreUnavailable, err)
	}

	if version > CurrentSchemaVersion {
		return fmt.Errorf("%w: database created by newer version (v%d > v%d)", domain.ErrStoreUnavailable, version, CurrentSchemaVersion)
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("%w: migration from v%d to v%d failed: %v", domain.ErrStoreUnavailable, v, v+1, err)
		}
		s.logger.Info("migrated store schema", "path", s.path, "from", v, "to", v+1)
	}
	return nil
}

// runMigration runs a specific version migration and records the new version
// in the same transaction.
func (s *BoltStore) runMigration(from, to int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		switch {
		case from == 0 && to == 1:
			for _, name := range [][]byte{bucketFiles, bucketChunks} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return fmt.Errorf("failed to create bucket %s: %w", name, err)
				}
			}
		case from == 1 && to == 2:
			if err := backfillFileIndex(tx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("no migration from v%d to v%d", from, to)
		}

		data, err := json.Marshal(to)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	})
}

// backfillFileIndex creates the file_chunks bucket and indexes every
// existing chunk by its file name.
func backfillFileIndex(tx *bbolt.Tx) error {
	index, err := tx.CreateBucketIfNotExists(bucketFileChunks)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
		var chunk domain.Chunk
		if err := json.Unmarshal(v, &chunk); err != nil || chunk.Metadata.FileName == "" {
			return nil
		}
		fc, err := index.CreateBucketIfNotExists([]byte(chunk.Metadata.FileName))
		if err != nil {
			return err
		}
		return fc.Put(k, nil)
	})
}
