package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dshills/knowledge-rag/pkg/types"
)

// DefaultCollection is the base collection name
const DefaultCollection = "knowledge_base"

// MetaActiveCollection is the meta key holding the active collection name
const MetaActiveCollection = "active_collection"

// deleteBatchSize bounds the number of placeholders per DELETE statement
const deleteBatchSize = 500

// Options configures a SQLite vector store
type Options struct {
	Path       string       // Database file, or ":memory:"
	Collection string       // Base collection name (default: "knowledge_base")
	Metric     string       // Distance metric (default: cosine)
	Logger     *slog.Logger // nil = slog.Default()
}

// SQLiteStorage implements Store on top of SQLite
type SQLiteStorage struct {
	db     *sql.DB
	base   string
	metric string
	logger *slog.Logger

	mu     sync.RWMutex
	collID int64
	name   string
}

var _ Store = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens the database, applies migrations and selects the
// active collection, creating it if needed
func NewSQLiteStorage(ctx context.Context, opts Options) (*SQLiteStorage, error) {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}
	if opts.Metric != MetricCosine {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMetric, opts.Metric)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	db, err := openDatabase(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStorage{
		db:     db,
		base:   opts.Collection,
		metric: opts.Metric,
		logger: opts.Logger,
	}

	name := opts.Collection
	if active, err := s.GetMeta(ctx, MetaActiveCollection); err == nil && s.ownsCollection(active) {
		name = active
	}
	if err := s.useCollection(ctx, name); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// ownsCollection reports whether name is the base collection or one of its fallbacks
func (s *SQLiteStorage) ownsCollection(name string) bool {
	return name == s.base || strings.HasPrefix(name, s.base+"_")
}

// useCollection creates the collection if needed and makes it active
func (s *SQLiteStorage) useCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, metric, dimension, created_at) VALUES (?, ?, 0, ?)",
		name, s.metric, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	var (
		id     int64
		metric string
	)
	err = s.db.QueryRowContext(ctx, "SELECT id, metric FROM collections WHERE name = ?", name).Scan(&id, &metric)
	if err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	if metric != s.metric {
		return fmt.Errorf("%w: collection %s uses %s, requested %s", ErrMetricMismatch, name, metric, s.metric)
	}

	if err := s.SetMeta(ctx, MetaActiveCollection, name); err != nil {
		return err
	}

	s.mu.Lock()
	s.collID = id
	s.name = name
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStorage) active() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collID, s.name
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Collection returns the active collection name
func (s *SQLiteStorage) Collection() string {
	_, name := s.active()
	return name
}

// Add upserts records inside one transaction
func (s *SQLiteStorage) Add(ctx context.Context, records []types.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	dim := len(records[0].Vector)
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("invalid record %q: %w", records[i].ID, err)
		}
		if len(records[i].Vector) != dim {
			return fmt.Errorf("%w: record %s has %d, batch has %d",
				ErrDimensionMismatch, records[i].ID, len(records[i].Vector), dim)
		}
	}

	collID, _ := s.active()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored int
	if err := tx.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE id = ?", collID).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read collection dimension: %w", err)
	}
	switch {
	case stored == 0:
		if _, err := tx.ExecContext(ctx, "UPDATE collections SET dimension = ? WHERE id = ?", dim, collID); err != nil {
			return fmt.Errorf("failed to set collection dimension: %w", err)
		}
	case stored != dim:
		return fmt.Errorf("%w: collection has %d, records have %d", ErrDimensionMismatch, stored, dim)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (collection_id, id, source, text, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id, id) DO UPDATE SET
			source = excluded.source,
			text = excluded.text,
			vector = excluded.vector,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixNano()
	for i := range records {
		r := &records[i]
		if _, err := stmt.ExecContext(ctx, collID, r.ID, r.Metadata.Source, r.Text, serializeVector(r.Vector), now); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// filterClause renders a filter as a WHERE clause over records
func filterClause(collID int64, f Filter) (string, []interface{}) {
	if f.All {
		return "collection_id = ?", []interface{}{collID}
	}
	return "collection_id = ? AND source = ?", []interface{}{collID, f.Source}
}

// DeleteByFilter removes all matching records
func (s *SQLiteStorage) DeleteByFilter(ctx context.Context, filter Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	collID, _ := s.active()

	where, args := filterClause(collID, filter)
	result, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteByIDs removes records by id in one transaction
func (s *SQLiteStorage) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	collID, _ := s.active()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		batch := ids[start:end]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = placeholders[:len(placeholders)-1]

		args := make([]interface{}, 0, len(batch)+1)
		args = append(args, collID)
		for _, id := range batch {
			args = append(args, id)
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM records WHERE collection_id = ? AND id IN ("+placeholders+")", args...)
		if err != nil {
			return 0, fmt.Errorf("failed to delete records: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return total, nil
}

// Count returns the number of records in the active collection
func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	return s.CountByFilter(ctx, Filter{All: true})
}

// CountByFilter returns the number of records matching the filter
func (s *SQLiteStorage) CountByFilter(ctx context.Context, filter Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	collID, _ := s.active()

	where, args := filterClause(collID, filter)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Query returns the k nearest records by cosine distance
func (s *SQLiteStorage) Query(ctx context.Context, vector []float32, k int) ([]types.SearchResult, error) {
	if k <= 0 {
		return []types.SearchResult{}, nil
	}
	if len(vector) == 0 {
		return nil, types.ErrEmptyVector
	}
	collID, _ := s.active()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, source, text, vector FROM records WHERE collection_id = ?", collID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := scoreRows(rows, vector)
	if err != nil {
		return nil, fmt.Errorf("failed to score records: %w", err)
	}
	return topK(candidates, k), nil
}

// ListIDs returns every record id in the active collection, sorted
func (s *SQLiteStorage) ListIDs(ctx context.Context) ([]string, error) {
	collID, _ := s.active()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM records WHERE collection_id = ? ORDER BY id", collID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reset empties the active collection
func (s *SQLiteStorage) Reset(ctx context.Context) (*ResetResult, error) {
	result, err := resetCollection(ctx, s, s.base, time.Now)
	if err != nil {
		return nil, err
	}
	if result.FellBack {
		s.logger.Warn("collection reset failed, switched to fresh collection",
			"collection", result.Collection, "error", result.Cause)
		return result, nil
	}

	// An empty collection may take vectors of a new dimension
	collID, name := s.active()
	result.Collection = name
	if _, err := s.db.ExecContext(ctx, "UPDATE collections SET dimension = 0 WHERE id = ?", collID); err != nil {
		return nil, fmt.Errorf("failed to clear collection dimension: %w", err)
	}
	return result, nil
}

// SwitchCollection makes a new, empty collection active
func (s *SQLiteStorage) SwitchCollection(ctx context.Context, name string) error {
	if !s.ownsCollection(name) {
		return fmt.Errorf("collection %s does not belong to %s", name, s.base)
	}
	return s.useCollection(ctx, name)
}

// GetMeta returns a metadata value or ErrNotFound
func (s *SQLiteStorage) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

// Status reports statistics about the active collection
func (s *SQLiteStorage) Status(ctx context.Context) (*Status, error) {
	collID, name := s.active()

	status := &Status{
		Collection: name,
		BuildMode:  BuildMode,
	}

	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT metric, dimension, created_at FROM collections WHERE id = ?", collID,
	).Scan(&status.Metric, &status.Dimension, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	status.CreatedAt = time.Unix(0, createdAt)

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT source) FROM records WHERE collection_id = ?", collID,
	).Scan(&status.Records, &status.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	// Calculate database size
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}
