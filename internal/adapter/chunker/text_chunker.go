package chunker

import (
	"strings"

	"neurodb/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// TextChunker splits text into windows of size runes, preferring to end a
// window on the last sentence terminator or newline in its second half.
type TextChunker struct {
	size    int
	overlap int
}

func NewTextChunker(size, overlap int) *TextChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	// cursor must advance by at least half a window
	if overlap > size/2 {
		overlap = size / 2
	}
	return &TextChunker{
		size:    size,
		overlap: overlap,
	}
}

func (c *TextChunker) Size() int { return c.size }

func (c *TextChunker) Overlap() int { return c.overlap }

// Chunk is deterministic: the same text and base metadata always yield the
// same drafts. Offsets are rune offsets into text, taken before trimming.
func (c *TextChunker) Chunk(text string, base map[string]string) []domain.ChunkDraft {
	runes := []rune(text)
	n := len(runes)

	var drafts []domain.ChunkDraft
	start := 0

	for start < n {
		end := start + c.size
		if end > n {
			end = n
		}
		window := runes[start:end]
		next := end

		if end < n {
			breakPoint := lastBreak(window)
			if breakPoint > c.size/2 {
				window = window[:breakPoint+1]
				next = start + breakPoint + 1
			} else {
				next = end - c.overlap
			}
		}

		piece := strings.TrimSpace(string(window))
		if piece != "" {
			drafts = append(drafts, domain.ChunkDraft{
				Text:       piece,
				ChunkIndex: len(drafts),
				StartChar:  start,
				EndChar:    start + len(window),
				Metadata:   copyMeta(base),
			})
		}
		start = next
	}

	return drafts
}

// lastBreak returns the offset of the last '.' or '\n' in window, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}

func copyMeta(base map[string]string) map[string]string {
	if len(base) == 0 {
		return nil
	}
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	return out
}
