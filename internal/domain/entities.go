package domain

import "time"

// File is one ingested source document. Name is the primary key.
type File struct {
	Name         string    `json:"name"`
	Content      []byte    `json:"content,omitempty"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author,omitempty"`
	PageCount    int       `json:"page_count,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// Chunk is one embedded slice of a File's text. ID is assigned by the store.
type Chunk struct {
	ID       uint64        `json:"id"`
	Text     string        `json:"text"`
	Vector   []float32     `json:"vector"`
	Metadata ChunkMetadata `json:"metadata"`
}

type ChunkMetadata struct {
	FileName   string            `json:"file_name"`
	ChunkIndex int               `json:"chunk_index"`
	StartChar  int               `json:"start_char"`
	EndChar    int               `json:"end_char"`
	Timestamp  time.Time         `json:"timestamp"`
	BatchID    string            `json:"batch_id,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ChunkDraft is chunker output: text plus positional metadata, not yet embedded.
type ChunkDraft struct {
	Text       string
	ChunkIndex int
	StartChar  int
	EndChar    int
	Metadata   map[string]string
}

// FileMeta describes the source of a document handed to the pipeline.
type FileMeta struct {
	FileName     string
	Content      []byte
	Size         int64
	LastModified time.Time
	Title        string
	Author       string
	PageCount    int
	ContentType  string
	Extra        map[string]string
}

// DocumentInfo is what the metadata reader reports for a source file.
type DocumentInfo struct {
	Title        string
	Author       string
	PageCount    int
	ContentType  string
	FileSize     int64
	LastModified time.Time
}

type SearchResult struct {
	ChunkID    uint64  `json:"chunk_id"`
	Text       string  `json:"text"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

type Stats struct {
	Files     int
	Chunks    int
	Dimension int
}

// SearchOutput is a ranked scan over the chunk collection.
type SearchOutput struct {
	Results []SearchResult
	Scanned int
	Skipped int
}
