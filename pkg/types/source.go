package types

import (
	"path/filepath"
	"strings"
	"time"
)

// SourceFile is a file under the watched document root
type SourceFile struct {
	Key         string    // Path relative to the root, slash separated
	Fingerprint string    // Hex encoded SHA-256 of the raw bytes
	ModifiedAt  time.Time // Filesystem modification time
	SizeBytes   int64
}

// SameContent reports whether two files are content-identical.
// Modification time is deliberately ignored; the fingerprint is authoritative.
func (f SourceFile) SameContent(other SourceFile) bool {
	return f.Fingerprint != "" && f.Fingerprint == other.Fingerprint
}

// Path returns the absolute location of the file below root
func (f SourceFile) Path(root string) string {
	return filepath.Join(root, filepath.FromSlash(f.Key))
}

// KeyFor converts a path below root into a source key.
// Keys always use forward slashes so chunk ids are identical across platforms.
func KeyFor(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsHidden reports whether any element of the key starts with a dot
func IsHidden(key string) bool {
	for _, part := range strings.Split(key, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
