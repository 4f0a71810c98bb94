package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"neurodb/internal/adapter/store/sqlmigrations"
	"neurodb/internal/domain"
)

// SQLiteStore is the relational substrate. Chunk ids come from AUTOINCREMENT
// so they are never reused, and the file name index is a SQL index.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// SQLiteOptions configures NewSQLiteStore.
type SQLiteOptions struct {
	// BusyTimeout bounds the wait for a lock held by another connection.
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

func NewSQLiteStore(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, timeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", domain.ErrStoreUnavailable, err)
	}
	// one writer at a time; the store is single-user
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: opening database %s: %v", domain.ErrStoreUnavailable, path, err)
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}
	if err := s.migrate(context.Background(), sqlmigrations.FS); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Path() string {
	return s.path
}

// migrate applies every embedded step above the stored user_version, each in
// its own transaction together with the version bump.
func (s *SQLiteStore) migrate(ctx context.Context, fsys fs.FS) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("%w: getting current version: %v", domain.ErrStoreUnavailable, err)
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("%w: database created by newer version (v%d > v%d)", domain.ErrStoreUnavailable, current, CurrentSchemaVersion)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current || version > CurrentSchemaVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(ctx, version, string(content)); err != nil {
			return fmt.Errorf("%w: executing migration %s: %v", domain.ErrStoreUnavailable, name, err)
		}
		s.logger.Info("migrated store schema", "path", s.path, "to", version)
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, version int, script string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	// PRAGMA does not accept bound parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SchemaInfo(ctx context.Context) (*SchemaInfo, error) {
	var info SchemaInfo
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&info.Version); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", string(keyConfigHash)).Scan(&info.ConfigHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &info, nil
}

func (s *SQLiteStore) SetConfigHash(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		string(keyConfigHash), hash)
	return err
}

func (s *SQLiteStore) PutFile(ctx context.Context, file domain.File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (name, content, size, last_modified, title, author, page_count, content_type, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			content = excluded.content,
			size = excluded.size,
			last_modified = excluded.last_modified,
			title = excluded.title,
			author = excluded.author,
			page_count = excluded.page_count,
			content_type = excluded.content_type,
			ingested_at = excluded.ingested_at
	`, file.Name, file.Content, file.Size, unixNano(file.LastModified), file.Title, file.Author,
		file.PageCount, file.ContentType, unixNano(file.IngestedAt))
	if err != nil {
		return fmt.Errorf("saving file %s: %w", file.Name, err)
	}
	return nil
}

const fileColumns = "name, content, size, last_modified, title, author, page_count, content_type, ingested_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (domain.File, error) {
	var file domain.File
	var modified, ingested int64
	err := row.Scan(&file.Name, &file.Content, &file.Size, &modified, &file.Title, &file.Author,
		&file.PageCount, &file.ContentType, &ingested)
	file.LastModified = fromUnixNano(modified)
	file.IngestedAt = fromUnixNano(ingested)
	return file, err
}

func (s *SQLiteStore) GetFile(ctx context.Context, name string) (domain.File, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE name = ?", name)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.File{}, fmt.Errorf("file %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return domain.File{}, fmt.Errorf("getting file %s: %w", name, err)
	}
	return file, nil
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting file %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) ListFiles(ctx context.Context) ([]domain.File, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var files []domain.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) InsertChunk(ctx context.Context, chunk domain.Chunk) (uint64, error) {
	ids, err := s.InsertChunks(ctx, []domain.Chunk{chunk})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *SQLiteStore) InsertChunks(ctx context.Context, chunks []domain.Chunk) ([]uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (file_name, chunk_index, start_char, end_char, text, vector, timestamp, batch_id, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]uint64, 0, len(chunks))
	for _, chunk := range chunks {
		var extra sql.NullString
		if len(chunk.Metadata.Extra) > 0 {
			data, err := json.Marshal(chunk.Metadata.Extra)
			if err != nil {
				return nil, fmt.Errorf("marshalling chunk metadata: %w", err)
			}
			extra = sql.NullString{String: string(data), Valid: true}
		}

		m := chunk.Metadata
		res, err := stmt.ExecContext(ctx, m.FileName, m.ChunkIndex, m.StartChar, m.EndChar, chunk.Text,
			float32SliceToBytes(chunk.Vector), unixNano(m.Timestamp), m.BatchID, extra)
		if err != nil {
			return nil, fmt.Errorf("inserting chunk: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing chunks: %w", err)
	}
	s.logger.Debug("inserted chunks", "count", len(ids))
	return ids, nil
}

func (s *SQLiteStore) DeleteChunk(ctx context.Context, id uint64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", int64(id)); err != nil {
		return fmt.Errorf("deleting chunk %d: %w", id, err)
	}
	return nil
}

const chunkColumns = "id, file_name, chunk_index, start_char, end_char, text, vector, timestamp, batch_id, extra"

func (s *SQLiteStore) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+" FROM chunks ORDER BY id")
}

func (s *SQLiteStore) ChunksForFile(ctx context.Context, fileName string) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE file_name = ? ORDER BY id", fileName)
}

func (s *SQLiteStore) ChunkIDsForFile(ctx context.Context, fileName string) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chunks WHERE file_name = ? ORDER BY id", fileName)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			chunk  domain.Chunk
			id     int64
			vector []byte
			ts     int64
			extra  sql.NullString
		)
		m := &chunk.Metadata
		if err := rows.Scan(&id, &m.FileName, &m.ChunkIndex, &m.StartChar, &m.EndChar, &chunk.Text,
			&vector, &ts, &m.BatchID, &extra); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.ID = uint64(id)
		chunk.Metadata.Timestamp = fromUnixNano(ts)
		if len(vector)%4 != 0 {
			s.logger.Warn("chunk vector has a partial component", "id", chunk.ID, "bytes", len(vector))
		} else {
			chunk.Vector = bytesToFloat32Slice(vector)
		}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &chunk.Metadata.Extra); err != nil {
				s.logger.Warn("chunk metadata is not valid JSON", "id", chunk.ID, "error", err)
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
