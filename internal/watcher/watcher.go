package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/knowledge-rag/internal/indexer"
)

// DefaultDebounce is the quiet period after the last event before a sync starts
const DefaultDebounce = 750 * time.Millisecond

// Syncer runs one synchronization pass
type Syncer interface {
	Sync(ctx context.Context) (*indexer.Statistics, error)
}

// Config configures a Watcher
type Config struct {
	Root        string
	Syncer      Syncer
	Debounce    time.Duration          // default: DefaultDebounce
	Filter      func(path string) bool // Files whose writes trigger a sync; nil = all
	SyncOnStart bool                   // Run a pass before waiting for events
	OnSync      func(*indexer.Statistics, error)
	Logger      *slog.Logger
}

// Watcher triggers a Syncer from filesystem events
type Watcher struct {
	root     string
	syncer   Syncer
	debounce time.Duration
	filter   func(string) bool
	onStart  bool
	onSync   func(*indexer.Statistics, error)
	logger   *slog.Logger
}

// New creates a Watcher
func New(cfg Config) (*Watcher, error) {
	if cfg.Syncer == nil {
		return nil, errors.New("watcher: syncer is required")
	}
	if cfg.Root == "" {
		return nil, errors.New("watcher: root is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		root:     cfg.Root,
		syncer:   cfg.Syncer,
		debounce: cfg.Debounce,
		filter:   cfg.Filter,
		onStart:  cfg.SyncOnStart,
		onSync:   cfg.OnSync,
		logger:   cfg.Logger,
	}, nil
}

type syncResult struct {
	stats *indexer.Statistics
	err   error
}

// Run watches the root until ctx is done. Events are debounced; an event
// arriving during a pass schedules another pass after it. A pass rejected
// with indexer.ErrSyncInProgress is retried after the debounce period.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching for changes", "root", w.root, "debounce", w.debounce)

	var (
		timer   = time.NewTimer(w.debounce)
		running bool
		pending bool
		done    = make(chan syncResult, 1)
	)
	defer timer.Stop()
	if !w.onStart {
		timer.Stop()
	}

	schedule := func() {
		timer.Reset(w.debounce)
	}
	start := func() {
		running = true
		go func() {
			stats, err := w.syncer.Sync(ctx)
			done <- syncResult{stats: stats, err: err}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			w.logger.Info("file watcher stopped", "root", w.root)
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, event) {
				continue
			}
			w.logger.Debug("file system event", "event", event.Op.String(), "path", event.Name)
			schedule()

		case <-timer.C:
			if running {
				pending = true
				continue
			}
			start()

		case res := <-done:
			running = false
			w.report(res)
			if pending || errors.Is(res.err, indexer.ErrSyncInProgress) {
				pending = false
				schedule()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// relevant reports whether an event should trigger a sync, watching new directories as a side effect
func (w *Watcher) relevant(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if w.hidden(event.Name) {
		return false
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Debug("could not watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}

	// A removed or renamed path may have been a directory full of documents
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}
	return w.filter == nil || w.filter(event.Name)
}

// hidden reports whether any path element below the root starts with a dot
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// addTree watches dir and every non-hidden directory below it
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.hidden(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "dir", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) report(res syncResult) {
	if w.onSync != nil {
		w.onSync(res.stats, res.err)
	}
	switch {
	case errors.Is(res.err, indexer.ErrSyncInProgress):
		w.logger.Debug("sync already running, retrying later")
	case errors.Is(res.err, context.Canceled):
	case res.err != nil:
		w.logger.Error("sync failed", "error", res.err)
	case res.stats != nil:
		w.logger.Info("sync complete",
			"pass_id", res.stats.PassID,
			"processed", res.stats.FilesProcessed,
			"removed", res.stats.FilesRemoved,
			"failed", res.stats.FilesFailed,
			"duration", res.stats.Duration)
	}
}
