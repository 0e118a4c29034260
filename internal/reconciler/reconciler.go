package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/knowledge-rag/internal/chunker"
	"github.com/dshills/knowledge-rag/internal/detector"
	"github.com/dshills/knowledge-rag/internal/storage"
	"github.com/dshills/knowledge-rag/pkg/types"
)

// ErrInvalidUTF8 is recorded for files that are not valid UTF-8 text
var ErrInvalidUTF8 = errors.New("file is not valid UTF-8")

// Unit is all the work for one source key
type Unit struct {
	Source  string
	Removal bool          // Source no longer exists; delete only
	Chunks  []types.Chunk // Fresh chunks to insert after the delete
}

// FileError records a source that could not be read or chunked
type FileError struct {
	Source string
	Err    error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// Plan is the set of mutations for one synchronization pass
type Plan struct {
	Deletes []storage.Filter
	Inserts []types.Chunk
	Units   []Unit
	Failed  []FileError
}

// Empty reports whether the plan requires no vector store writes
func (p *Plan) Empty() bool {
	return len(p.Deletes) == 0 && len(p.Inserts) == 0
}

// FailedSources returns the keys that could not be prepared
func (p *Plan) FailedSources() []string {
	out := make([]string, len(p.Failed))
	for i, f := range p.Failed {
		out[i] = f.Source
	}
	return out
}

// Config configures a Reconciler
type Config struct {
	Root    string           // Document root the change set was detected against
	Chunker *chunker.Chunker // nil = chunker.Default()
	Workers int              // Concurrent file readers (default: runtime.NumCPU())
	Logger  *slog.Logger     // nil = slog.Default()
}

// Reconciler computes plans from change sets
type Reconciler struct {
	root    string
	chunker *chunker.Chunker
	workers int
	logger  *slog.Logger
}

// New creates a Reconciler
func New(cfg Config) *Reconciler {
	if cfg.Chunker == nil {
		cfg.Chunker = chunker.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reconciler{
		root:    cfg.Root,
		chunker: cfg.Chunker,
		workers: cfg.Workers,
		logger:  cfg.Logger,
	}
}

// prepared is the outcome of reading and chunking one source
type prepared struct {
	chunks []types.Chunk
	err    error
}

// Reconcile reads and chunks every source to process and returns the plan.
// Units are ordered by source key regardless of completion order. Sources
// that fail to read are excluded from both deletes and inserts.
func (r *Reconciler) Reconcile(ctx context.Context, cs *detector.ChangeSet) (*Plan, error) {
	plan := &Plan{}
	if cs == nil || cs.Empty() {
		return plan, nil
	}

	results := make([]prepared, len(cs.ToProcess))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, src := range cs.ToProcess {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].chunks, results[i].err = r.prepare(src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	units := make([]Unit, 0, len(cs.ToProcess)+len(cs.ToRemove))
	for i, src := range cs.ToProcess {
		if err := results[i].err; err != nil {
			r.logger.Warn("skipping source", "key", src.Key, "error", err)
			plan.Failed = append(plan.Failed, FileError{Source: src.Key, Err: err})
			continue
		}
		units = append(units, Unit{Source: src.Key, Chunks: results[i].chunks})
	}
	for _, key := range cs.ToRemove {
		units = append(units, Unit{Source: key, Removal: true})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Source < units[j].Source })

	for _, u := range units {
		plan.Deletes = append(plan.Deletes, storage.SourceFilter(u.Source))
		plan.Inserts = append(plan.Inserts, u.Chunks...)
	}
	plan.Units = units

	return plan, nil
}

// prepare reads one source and splits it into chunks
func (r *Reconciler) prepare(src types.SourceFile) ([]types.Chunk, error) {
	data, err := os.ReadFile(src.Path(r.root))
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}
	return r.chunker.ChunkDocument(src.Key, string(data)), nil
}
