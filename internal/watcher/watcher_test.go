package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/knowledge-rag/internal/indexer"
)

type fakeSyncer struct {
	mu       sync.Mutex
	calls    int
	failures int // Leading calls rejected with ErrSyncInProgress
}

func (f *fakeSyncer) Sync(ctx context.Context) (*indexer.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, indexer.ErrSyncInProgress
	}
	return &indexer.Statistics{PassID: "test"}, nil
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func startWatcher(t *testing.T, cfg Config) {
	t.Helper()
	if cfg.Debounce == 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh)
	})

	// Give the watcher time to register the tree
	time.Sleep(100 * time.Millisecond)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Root: t.TempDir()})
	assert.Error(t, err)
	_, err = New(Config{Syncer: &fakeSyncer{}})
	assert.Error(t, err)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	root := t.TempDir()
	syncer := &fakeSyncer{}
	startWatcher(t, Config{Root: root, Syncer: syncer, Debounce: 200 * time.Millisecond})

	for i := 0; i < 5; i++ {
		write(t, filepath.Join(root, "doc.txt"), strings.Repeat("x", i+1))
	}

	require.Eventually(t, func() bool { return syncer.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, syncer.count(), "one pass per burst")
}

func TestWatcher_SyncOnStart(t *testing.T) {
	syncer := &fakeSyncer{}
	var mu sync.Mutex
	var seen []*indexer.Statistics
	startWatcher(t, Config{
		Root:        t.TempDir(),
		Syncer:      syncer,
		SyncOnStart: true,
		OnSync: func(s *indexer.Statistics, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
		},
	})

	require.Eventually(t, func() bool { return syncer.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_RetriesWhenBusy(t *testing.T) {
	root := t.TempDir()
	syncer := &fakeSyncer{failures: 1}
	startWatcher(t, Config{Root: root, Syncer: syncer})

	write(t, filepath.Join(root, "a.txt"), "hello")

	require.Eventually(t, func() bool { return syncer.count() >= 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_NewSubdirectoryWatched(t *testing.T) {
	root := t.TempDir()
	syncer := &fakeSyncer{}
	startWatcher(t, Config{Root: root, Syncer: syncer})

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.Eventually(t, func() bool { return syncer.count() == 1 }, 3*time.Second, 20*time.Millisecond)

	write(t, filepath.Join(root, "sub", "b.md"), "nested")
	require.Eventually(t, func() bool { return syncer.count() == 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresHiddenAndFiltered(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	syncer := &fakeSyncer{}
	startWatcher(t, Config{
		Root:   root,
		Syncer: syncer,
		Filter: func(path string) bool { return strings.HasSuffix(path, ".txt") },
	})

	write(t, filepath.Join(root, ".git", "index.txt"), "x")
	write(t, filepath.Join(root, ".hidden.txt"), "x")
	write(t, filepath.Join(root, "image.png"), "x")
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, syncer.count())

	write(t, filepath.Join(root, "notes.txt"), "x")
	require.Eventually(t, func() bool { return syncer.count() == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_Hidden(t *testing.T) {
	w := &Watcher{root: "/docs"}
	assert.True(t, w.hidden("/docs/.git/config"))
	assert.True(t, w.hidden("/docs/a/.cache"))
	assert.False(t, w.hidden("/docs/a/b.txt"))
	assert.False(t, w.hidden("/docs"))
}
