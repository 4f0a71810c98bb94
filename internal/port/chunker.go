package port

import "neurodb/internal/domain"

type Chunker interface {
	Chunk(text string, base map[string]string) []domain.ChunkDraft
}
