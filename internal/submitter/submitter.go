package submitter

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/knowledge-rag/internal/embedder"
	"github.com/dshills/knowledge-rag/pkg/types"
)

// DefaultBatchSize is the number of chunks per embedding call and store add
const DefaultBatchSize = 1000

// Stage names where a batch failed
type Stage string

const (
	StageEmbed     Stage = "embed"
	StageStore     Stage = "store"
	StageCancelled Stage = "cancelled"
)

// Store is the part of the vector store the submitter writes to
type Store interface {
	Add(ctx context.Context, records []types.VectorRecord) error
	Count(ctx context.Context) (int, error)
}

// FailedBatch describes one batch that was not committed
type FailedBatch struct {
	Index   int
	IDs     []string
	Sources []string // Distinct source keys in the batch
	Stage   Stage
	Err     error
}

// Report is the outcome of a submission
type Report struct {
	SucceededIDs  []string
	FailedBatches []FailedBatch
	Batches       int
	Expected      int   // Store count before submission plus the number of inserts
	FinalCount    int   // Store count after submission
	Shortfall     int   // Expected - FinalCount when positive
	CountErr      error // Set when the store could not be counted
	Duration      time.Duration
}

// FailedSources returns the distinct sources with at least one failed chunk, sorted
func (r *Report) FailedSources() []string {
	seen := make(map[string]struct{})
	for _, fb := range r.FailedBatches {
		for _, s := range fb.Sources {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Failed returns the number of chunks that were not committed
func (r *Report) Failed() int {
	n := 0
	for _, fb := range r.FailedBatches {
		n += len(fb.IDs)
	}
	return n
}

// Config configures a Submitter
type Config struct {
	Embedder  embedder.BatchEmbedder
	Store     Store
	BatchSize int          // Chunks per batch (default: DefaultBatchSize)
	Workers   int          // Concurrent batches (default: runtime.NumCPU())
	Model     string       // Optional embedding model override
	Logger    *slog.Logger // nil = slog.Default()
}

// Submitter embeds and stores chunks
type Submitter struct {
	embedder  embedder.BatchEmbedder
	store     Store
	batchSize int
	workers   int
	model     string
	logger    *slog.Logger
}

// New creates a Submitter
func New(cfg Config) *Submitter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Submitter{
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		model:     cfg.Model,
		logger:    cfg.Logger,
	}
}

// Batches partitions chunks into consecutive batches of at most size, preserving order
func Batches(chunks []types.Chunk, size int) [][]types.Chunk {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]types.Chunk, 0, (len(chunks)+size-1)/size)
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		out = append(out, chunks[start:end])
	}
	return out
}

// batchResult is the outcome of one batch
type batchResult struct {
	ok     bool
	failed FailedBatch
}

// Submit embeds and stores every chunk. It never returns an error: failures
// are isolated per batch and recorded in the report.
func (s *Submitter) Submit(ctx context.Context, inserts []types.Chunk) *Report {
	start := time.Now()
	report := &Report{}

	baseline, err := s.store.Count(ctx)
	if err != nil {
		report.CountErr = fmt.Errorf("count before submit: %w", err)
	}
	report.Expected = baseline + len(inserts)

	batches := Batches(inserts, s.batchSize)
	report.Batches = len(batches)
	results := make([]batchResult, len(batches))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, batch := range batches {
		g.Go(func() error {
			results[i] = s.submitBatch(ctx, i, batch)
			if !results[i].ok {
				s.logger.Warn("batch failed",
					"batch", i+1,
					"of", len(batches),
					"chunks", len(batch),
					"stage", results[i].failed.Stage,
					"error", results[i].failed.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res.ok {
			for _, c := range batches[i] {
				report.SucceededIDs = append(report.SucceededIDs, c.ID)
			}
			continue
		}
		report.FailedBatches = append(report.FailedBatches, res.failed)
	}

	// Counting uses a fresh context so a cancelled pass still reports what landed
	countCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	final, err := s.store.Count(countCtx)
	if err != nil {
		if report.CountErr == nil {
			report.CountErr = fmt.Errorf("count after submit: %w", err)
		}
	} else {
		report.FinalCount = final
	}
	if report.CountErr == nil && report.FinalCount < report.Expected {
		report.Shortfall = report.Expected - report.FinalCount
		s.logger.Warn("indexed fewer chunks than expected",
			"expected", report.Expected,
			"final_count", report.FinalCount,
			"shortfall", report.Shortfall)
	}

	report.Duration = time.Since(start)
	return report
}

// submitBatch embeds one batch and adds it atomically
func (s *Submitter) submitBatch(ctx context.Context, index int, batch []types.Chunk) batchResult {
	fail := func(stage Stage, err error) batchResult {
		return batchResult{failed: newFailedBatch(index, batch, stage, err)}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageCancelled, err)
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	resp, err := s.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts, Model: s.model})
	if err != nil {
		if ctx.Err() != nil {
			return fail(StageCancelled, err)
		}
		return fail(StageEmbed, err)
	}
	vectors := resp.Vectors()
	if len(vectors) != len(batch) {
		return fail(StageEmbed, fmt.Errorf("%w: expected %d vectors, got %d",
			embedder.ErrProviderFailed, len(batch), len(vectors)))
	}

	records := make([]types.VectorRecord, len(batch))
	for i, c := range batch {
		records[i] = types.RecordFromChunk(c, vectors[i])
	}

	if err := s.store.Add(ctx, records); err != nil {
		if ctx.Err() != nil {
			return fail(StageCancelled, err)
		}
		return fail(StageStore, err)
	}
	return batchResult{ok: true}
}

func newFailedBatch(index int, batch []types.Chunk, stage Stage, err error) FailedBatch {
	fb := FailedBatch{Index: index, Stage: stage, Err: err}
	seen := make(map[string]struct{})
	for _, c := range batch {
		fb.IDs = append(fb.IDs, c.ID)
		if _, ok := seen[c.SourceKey]; !ok {
			seen[c.SourceKey] = struct{}{}
			fb.Sources = append(fb.Sources, c.SourceKey)
		}
	}
	return fb
}
