package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/dshills/knowledge-rag/pkg/types"
)

const (
	// DefaultSize is the default window size in runes
	DefaultSize = 1000

	// DefaultOverlap is the default number of runes shared by consecutive chunks
	DefaultOverlap = 200
)

// ErrInvalidParams is returned for a size/overlap combination that cannot make progress
var ErrInvalidParams = errors.New("invalid chunking parameters")

// defaultSeparators are tried in order, coarsest first. The empty separator is a hard cut.
var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// Chunker splits text into overlapping windows
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Chunker with the given window size and overlap, both in runes
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidParams, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidParams, size, overlap)
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}, nil
}

// Default returns a Chunker with DefaultSize and DefaultOverlap
func Default() *Chunker {
	c, _ := New(DefaultSize, DefaultOverlap)
	return c
}

// Size returns the window size
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap between consecutive windows
func (c *Chunker) Overlap() int { return c.overlap }

// Signature identifies the chunking parameters. Stored alongside an index so a
// parameter change can be detected.
func (c *Chunker) Signature() string {
	return fmt.Sprintf("recursive:%d:%d", c.size, c.overlap)
}

// Split returns the ordered chunks of text
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if runeLen(text) <= c.size {
		return []string{trimmed}
	}
	return c.split(text, c.separators)
}

// Chunks yields (ordinal, text) pairs. The sequence can be ranged over any
// number of times and always yields the same values.
func (c *Chunker) Chunks(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i, s := range c.Split(text) {
			if !yield(i, s) {
				return
			}
		}
	}
}

// ChunkDocument splits text and binds every window to sourceKey
func (c *Chunker) ChunkDocument(sourceKey, text string) []types.Chunk {
	parts := c.Split(text)
	chunks := make([]types.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, types.NewChunk(sourceKey, i, part))
	}
	return chunks
}

// split recursively breaks text at the coarsest separator it contains
func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			separator = ""
			break
		}
		if strings.Contains(text, s) {
			separator = s
			finer = separators[i+1:]
			break
		}
	}

	var out, pending []string
	for _, piece := range splitKeep(text, separator) {
		if runeLen(piece) < c.size {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, c.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			if s := strings.TrimSpace(piece); s != "" {
				out = append(out, s)
			}
			continue
		}
		out = append(out, c.split(piece, finer)...)
	}
	if len(pending) > 0 {
		out = append(out, c.merge(pending)...)
	}
	return out
}

// merge packs pieces into windows of at most size runes.
// Every piece passed in is shorter than size.
func (c *Chunker) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > c.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeep splits text after every occurrence of sep, keeping sep on the
// preceding piece. An empty separator splits into single runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	raw := strings.SplitAfter(text, sep)
	pieces := raw[:0]
	for _, p := range raw {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
