//go:build !unix && !windows

package indexer

// fileLock is a no-op where advisory file locks are unavailable; the
// in-process IndexLock still applies.
type fileLock struct{}

func lockFile(string) (*fileLock, error) {
	return &fileLock{}, nil
}

func (*fileLock) unlock() error {
	return nil
}
