package indexer

import "sync/atomic"

// IndexLock provides non-blocking lock semantics using atomic operations.
// It serialises passes within one process; the lock file serialises them
// across processes.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Busy reports whether a pass currently holds the lock
func (l *IndexLock) Busy() bool {
	return l.state.Load() == 1
}

// acquire takes the in-process lock, then the lock file when configured.
// The returned func releases both.
func (idx *Indexer) acquire() (func(), error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrSyncInProgress
	}
	if idx.lockPath == "" {
		return idx.lock.Release, nil
	}

	fl, err := lockFile(idx.lockPath)
	if err != nil {
		idx.lock.Release()
		return nil, err
	}
	return func() {
		if err := fl.unlock(); err != nil {
			idx.logger.Warn("failed to release lock file", "path", idx.lockPath, "error", err)
		}
		idx.lock.Release()
	}, nil
}

// Busy reports whether a pass is running in this process
func (idx *Indexer) Busy() bool {
	return idx.lock.Busy()
}
