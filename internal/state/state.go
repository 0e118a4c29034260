package state

import (
	"context"
	"errors"
	"maps"
	"sort"
	"time"

	"github.com/dshills/knowledge-rag/pkg/types"
)

var (
	// ErrCorruptState is returned when a persisted state cannot be decoded
	ErrCorruptState = errors.New("index state is corrupt")
	// ErrUnsupportedVersion is returned for a state file written by a newer format
	ErrUnsupportedVersion = errors.New("unsupported index state version")
)

// FormatVersion is the version written to persisted state
const FormatVersion = 1

// Entry is the recorded state of one source file
type Entry struct {
	Fingerprint string `json:"fingerprint"` // Hex SHA-256
	ModifiedAt  int64  `json:"modified_at"` // Unix nanoseconds
	SizeBytes   int64  `json:"size_bytes"`
}

// State maps source keys to their recorded entry
type State map[string]Entry

// Store loads and saves the index state
type Store interface {
	// Load returns the last saved state, or an empty state if none exists
	Load(ctx context.Context) (State, error)
	// Save atomically replaces the persisted state
	Save(ctx context.Context, st State) error
	// Close releases any resources held by the store
	Close() error
}

// EntryFor builds the entry recorded for a scanned file
func EntryFor(f types.SourceFile) Entry {
	return Entry{
		Fingerprint: f.Fingerprint,
		ModifiedAt:  f.ModifiedAt.UnixNano(),
		SizeBytes:   f.SizeBytes,
	}
}

// ModTime returns the recorded modification time
func (e Entry) ModTime() time.Time {
	return time.Unix(0, e.ModifiedAt)
}

// Clone returns an independent copy of the state
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Equal reports whether two states record exactly the same files
func (s State) Equal(other State) bool {
	return maps.Equal(s, other)
}

// Keys returns the recorded keys in sorted order
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
