package domain

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsUnwrap(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"extraction", &ExtractionError{Path: "a.pdf", Err: io.ErrUnexpectedEOF}, "extract a.pdf: unexpected EOF"},
		{"embedding", &EmbeddingError{Index: 3, Err: io.ErrUnexpectedEOF}, "embed chunk 3: unexpected EOF"},
		{"chunk delete", &ChunkDeleteError{ID: 7, Err: io.ErrUnexpectedEOF}, "delete chunk 7: unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
			assert.EqualError(t, tt.err, tt.msg)
		})
	}
}

func TestOrphanChunksErrorInJoin(t *testing.T) {
	err := errors.Join(
		&ChunkDeleteError{ID: 2, Err: ErrStoreUnavailable},
		&OrphanChunksError{FileName: "a.pdf", Count: 1, FailedIDs: []uint64{2}},
	)

	var orphans *OrphanChunksError
	require.ErrorAs(t, err, &orphans)
	assert.Equal(t, []uint64{2}, orphans.FailedIDs)
	assert.Contains(t, err.Error(), `1 orphan chunks remain for file "a.pdf"`)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrInvalidInput, ErrNotFound, ErrStoreUnavailable, ErrMalformedRecord, ErrProviderInit}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
