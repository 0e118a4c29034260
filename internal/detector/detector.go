package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/knowledge-rag/internal/state"
	"github.com/dshills/knowledge-rag/pkg/types"
)

// DefaultExtensions is the supported-extension allowlist used when none is configured
var DefaultExtensions = []string{".txt", ".md", ".py", ".js", ".json", ".csv"}

// ErrFileTooLarge is recorded for files above Options.MaxFileSize
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// Options controls which files are considered
type Options struct {
	Extensions    []string     // Allowlist, case-insensitive, with leading dot (default: DefaultExtensions)
	IncludeHidden bool         // Descend into dot-directories and include dot-files (default: false)
	MaxFileSize   int64        // Files larger than this are skipped with a warning; 0 = unlimited
	Logger        *slog.Logger // nil = slog.Default()
}

// Warning records a file that could not be examined
type Warning struct {
	Key string
	Err error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Key, w.Err)
}

// ChangeSet is the result of comparing a scan with the previous state
type ChangeSet struct {
	ToProcess []types.SourceFile // New or modified, sorted by key
	ToRemove  []string           // Recorded but no longer present, sorted
	Unchanged []string           // Present with identical content, sorted
	Next      state.State        // Fresh state built from this scan
	Warnings  []Warning
}

// Empty reports whether the change set requires no vector store work
func (cs *ChangeSet) Empty() bool {
	return len(cs.ToProcess) == 0 && len(cs.ToRemove) == 0
}

// Detector finds changed files below a root
type Detector struct {
	exts   map[string]struct{}
	opts   Options
	logger *slog.Logger
	walk   func(root string, fn fs.WalkDirFunc) error
}

// New creates a detector
func New(opts Options) *Detector {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{exts: set, opts: opts, logger: logger, walk: filepath.WalkDir}
}

// Supported reports whether a path has an allowed extension
func (d *Detector) Supported(path string) bool {
	_, ok := d.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// EnsureRoot creates the document root if it does not exist
func EnsureRoot(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("failed to create document root: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat document root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document root %s is not a directory", root)
	}
	return nil
}

// Detect scans root and compares it with prev. A missing root yields an empty
// change set in which every recorded key is removed.
func (d *Detector) Detect(root string, prev state.State) (*ChangeSet, error) {
	cs := &ChangeSet{Next: state.State{}}

	files, unreadable, err := d.discover(root, cs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.key] = struct{}{}
		d.classify(cs, f, prev)
	}

	for key, old := range prev {
		if _, ok := seen[key]; ok {
			continue
		}
		// Keys below a path that could not be read are not known to be gone
		if unreadable.covers(key) {
			cs.Next[key] = old
			continue
		}
		cs.ToRemove = append(cs.ToRemove, key)
	}

	sort.Slice(cs.ToProcess, func(i, j int) bool { return cs.ToProcess[i].Key < cs.ToProcess[j].Key })
	sort.Strings(cs.ToRemove)
	sort.Strings(cs.Unchanged)
	return cs, nil
}

// classify decides what happens to one scanned file. Content is always
// hashed; modification time and size never decide on their own.
func (d *Detector) classify(cs *ChangeSet, f scanned, prev state.State) {
	old, known := prev[f.key]

	if f.err != nil {
		d.warn(cs, f.key, f.err)
		if known {
			cs.Next[f.key] = old
		}
		return
	}

	src := types.SourceFile{Key: f.key, ModifiedAt: f.info.ModTime(), SizeBytes: f.info.Size()}

	fp, err := Fingerprint(f.path)
	if err != nil {
		d.warn(cs, f.key, err)
		if known {
			cs.Next[f.key] = old
		}
		return
	}
	src.Fingerprint = fp
	cs.Next[f.key] = state.EntryFor(src)

	if known && old.Fingerprint == fp {
		cs.Unchanged = append(cs.Unchanged, f.key)
		return
	}
	cs.ToProcess = append(cs.ToProcess, src)
}

func (d *Detector) warn(cs *ChangeSet, key string, err error) {
	d.logger.Warn("skipping unreadable file", "key", key, "error", err)
	cs.Warnings = append(cs.Warnings, Warning{Key: key, Err: err})
}

// scanned is one candidate file found during discovery
type scanned struct {
	key  string
	path string
	info fs.FileInfo
	err  error
}

// unreadablePaths records keys of files and directories the walk could not read
type unreadablePaths struct {
	files map[string]struct{}
	dirs  []string // Key prefixes ending in "/"
}

func (u *unreadablePaths) add(key string, dir bool) {
	if dir {
		u.dirs = append(u.dirs, key+"/")
		return
	}
	if u.files == nil {
		u.files = make(map[string]struct{})
	}
	u.files[key] = struct{}{}
}

func (u *unreadablePaths) covers(key string) bool {
	if _, ok := u.files[key]; ok {
		return true
	}
	for _, prefix := range u.dirs {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// discover walks root collecting supported files. Paths the walk cannot read
// are recorded as warnings on cs and returned as unreadable.
func (d *Detector) discover(root string, cs *ChangeSet) ([]scanned, *unreadablePaths, error) {
	info, err := os.Stat(root)
	unreadable := &unreadablePaths{}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, unreadable, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat document root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("document root %s is not a directory", root)
	}

	var files []scanned

	err = d.walk(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			key, _ := types.KeyFor(root, path)
			d.logger.Warn("skipping unreadable path", "key", key, "error", err)
			cs.Warnings = append(cs.Warnings, Warning{Key: key, Err: err})
			dir := entry != nil && entry.IsDir()
			unreadable.add(key, dir)
			if dir {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		hidden := strings.HasPrefix(entry.Name(), ".")
		if entry.IsDir() {
			if hidden && !d.opts.IncludeHidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden && !d.opts.IncludeHidden {
			return nil
		}
		if !entry.Type().IsRegular() || !d.Supported(path) {
			return nil
		}

		key, err := types.KeyFor(root, path)
		if err != nil {
			return err
		}

		f := scanned{key: key, path: path}
		f.info, f.err = entry.Info()
		if f.err == nil && d.opts.MaxFileSize > 0 && f.info.Size() > d.opts.MaxFileSize {
			f.err = fmt.Errorf("%w: %d bytes", ErrFileTooLarge, f.info.Size())
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan document root: %w", err)
	}

	return files, unreadable, nil
}

// Fingerprint returns the hex SHA-256 of a file's bytes
func Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
