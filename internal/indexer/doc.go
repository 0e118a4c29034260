// Package indexer keeps a vector store synchronized with a directory of
// documents.
//
// The indexer orchestrates change detection, reconciliation, embedding and
// storage, and owns the index state that records what is currently indexed.
//
// # Basic Usage
//
//	idx, err := indexer.New(indexer.Config{
//	    Root:     "documents",
//	    Embedder: emb,
//	    Store:    store,
//	    State:    state.NewFileStore(".knowledge-rag/index_state.json"),
//	    LockPath: ".knowledge-rag/index.lock",
//	})
//
//	stats, err := idx.Sync(ctx)
//	fmt.Printf("processed %d, removed %d in %v\n",
//	    stats.FilesProcessed, stats.FilesRemoved, stats.Duration)
//
// # Synchronization Pass
//
// Each pass executes the same pipeline:
//
//  1. Detect: scan the root, compare fingerprints with the saved state
//  2. Reconcile: read and chunk new or modified files (parallel)
//  3. Delete: remove existing chunks of every changed or deleted file
//  4. Submit: embed fresh chunks in batches and add them to the store
//  5. Commit: save the new index state
//
// All deletes complete before any insert starts, so a modified file never has
// chunks from two versions in the store. The state is written last; a pass
// that crashes or is cancelled leaves the previous state in place and the next
// pass redoes the affected files.
//
// # Incremental Synchronization
//
// Running Sync twice without touching the documents performs no store writes
// on the second run:
//
//	stats1, _ := idx.Sync(ctx) // processed 12
//	stats2, _ := idx.Sync(ctx) // processed 0, unchanged 12
//
// Changing a file's modification time without changing its bytes does not
// cause reprocessing; the SHA-256 fingerprint decides.
//
// # Rebuild
//
// Rebuild resets the store and indexes everything again. Sync switches to a
// rebuild by itself when the chunking parameters or embedding model differ
// from the ones the index was built with, or when the saved state cannot be
// read.
//
// # Error Handling
//
// Only structural failures are returned as errors: the lock is held, the
// state cannot be loaded, the store cannot be reset or the context was
// cancelled. Everything else is recorded in Statistics:
//
//	if stats.FilesFailed > 0 {
//	    for _, msg := range stats.ErrorMessages {
//	        log.Println(msg)
//	    }
//	}
//
// Failed files are saved without a fingerprint, so the next pass retries them
// and a failed file deleted in the meantime is still removed from the store.
//
// # Concurrency
//
// A pass holds an in-process lock and, when LockPath is set, an advisory lock
// file. A second pass started while one is running fails fast with
// ErrSyncInProgress.
package indexer
