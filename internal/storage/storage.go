package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/knowledge-rag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyFilter is returned for a filter that would match nothing or everything by accident
	ErrEmptyFilter = errors.New("filter must name a source or set All")
	// ErrDimensionMismatch is returned when a vector does not match the collection dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrMetricMismatch is returned when a collection is opened with a different metric
	ErrMetricMismatch = errors.New("distance metric mismatch")
	// ErrUnsupportedMetric is returned for metrics other than cosine
	ErrUnsupportedMetric = errors.New("unsupported distance metric")
)

// MetricCosine is the only supported distance metric
const MetricCosine = "cosine"

// Store is the vector store contract used by the synchronization pipeline
type Store interface {
	// Add upserts records by id in a single atomic operation
	Add(ctx context.Context, records []types.VectorRecord) error
	// DeleteByFilter removes all records matching the metadata filter
	DeleteByFilter(ctx context.Context, filter Filter) (int, error)
	// DeleteByIDs removes the given ids, ignoring unknown ones
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	// Count returns the number of records in the active collection
	Count(ctx context.Context) (int, error)
	// CountByFilter returns the number of records matching the filter
	CountByFilter(ctx context.Context, filter Filter) (int, error)
	// Query returns the k nearest records by cosine distance
	Query(ctx context.Context, vector []float32, k int) ([]types.SearchResult, error)
	// ListIDs returns every record id in the active collection
	ListIDs(ctx context.Context) ([]string, error)
	// Reset empties the active collection, falling back to a fresh collection on failure
	Reset(ctx context.Context) (*ResetResult, error)

	// Collection returns the name of the active collection
	Collection() string
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	Status(ctx context.Context) (*Status, error)
	Close() error
}

// Filter is a predicate over record metadata
type Filter struct {
	Source string // Match records whose metadata source equals this key
	All    bool   // Match every record in the collection
}

// SourceFilter returns the filter matching one source key
func SourceFilter(source string) Filter {
	return Filter{Source: source}
}

// Validate rejects the zero filter
func (f Filter) Validate() error {
	if !f.All && f.Source == "" {
		return ErrEmptyFilter
	}
	return nil
}

// ResetResult describes the outcome of a full reset
type ResetResult struct {
	Deleted    int
	Collection string // Active collection after the reset
	FellBack   bool   // True when a fresh collection replaced the old one
	Cause      error  // Deletion failure that triggered the fallback
}

// Status contains statistics about the active collection
type Status struct {
	Collection    string
	Metric        string
	Dimension     int
	Records       int
	Sources       int
	SchemaVersion string
	BuildMode     string
	IndexSizeMB   float64
	CreatedAt     time.Time
}
