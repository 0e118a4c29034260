package types

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// chunkSeparator joins a source key and an ordinal in a chunk id
const chunkSeparator = "_chunk_"

// Chunk represents a contiguous, overlapping slice of a document's text
type Chunk struct {
	ID        string
	SourceKey string // Back-reference to the owning SourceFile
	Ordinal   int    // 0-based position in split order
	Text      string
}

// NewChunk builds a chunk with its deterministic id
func NewChunk(sourceKey string, ordinal int, text string) Chunk {
	return Chunk{
		ID:        ChunkID(sourceKey, ordinal),
		SourceKey: sourceKey,
		Ordinal:   ordinal,
		Text:      text,
	}
}

// ChunkID returns the deterministic id "{sourceKey}_chunk_{ordinal}"
func ChunkID(sourceKey string, ordinal int) string {
	return sourceKey + chunkSeparator + strconv.Itoa(ordinal)
}

// ParseChunkID splits a chunk id back into its source key and ordinal.
// The last separator wins, so keys that themselves contain "_chunk_" round-trip.
func ParseChunkID(id string) (sourceKey string, ordinal int, ok bool) {
	idx := strings.LastIndex(id, chunkSeparator)
	if idx <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[idx+len(chunkSeparator):])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:idx], n, true
}

// Length returns the chunk length in runes, the unit used by the chunker
func (c *Chunk) Length() int {
	return utf8.RuneCountInString(c.Text)
}

// Validate checks that the chunk is well formed and its id is consistent
func (c *Chunk) Validate() error {
	if c.SourceKey == "" {
		return ErrEmptySourceKey
	}
	if c.Ordinal < 0 {
		return ErrInvalidOrdinal
	}
	if c.Text == "" {
		return ErrEmptyContent
	}
	if c.ID != ChunkID(c.SourceKey, c.Ordinal) {
		return ErrChunkIDMismatch
	}
	return nil
}
