// Package storage provides a SQLite-backed vector store for chunk records.
//
// The store manages:
//   - Named collections with a fixed distance metric and dimension
//   - Vector records (chunk id, source key, text, embedding)
//   - Key/value metadata (active collection, index parameters)
//
// # Database Schema
//
// Tables:
//   - schema_version: Applied migrations (semver ordered)
//   - meta: Key/value metadata
//   - collections: Collection name, metric, dimension
//   - records: One row per chunk, keyed by (collection, id)
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage(ctx, storage.Options{
//	    Path:       ".knowledge-rag/vectors.db",
//	    Collection: "knowledge_base",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Upsert a batch atomically
//	err = db.Add(ctx, records)
//
//	// Remove every chunk of one file
//	n, err := db.DeleteByFilter(ctx, storage.SourceFilter("notes/todo.md"))
//
//	// Nearest neighbours
//	results, err := db.Query(ctx, queryVector, 5)
//	for _, r := range results {
//	    fmt.Printf("%s: distance %.3f\n", r.ID, r.Distance)
//	}
//
// # Metric and Dimension
//
// The distance metric is fixed when a collection is created and only cosine
// distance is supported. The dimension is set by the first Add and every
// later vector must match it. Reset clears the dimension so a rebuild may use
// a different embedding model.
//
// # Full Reset
//
// Reset enumerates every id in the active collection and deletes them. If
// that fails, a fresh collection named "<base>_<unix>_<suffix>" becomes active
// and is recorded in meta so it survives restarts.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
//
// Vector scoring is done in Go in both builds.
package storage
