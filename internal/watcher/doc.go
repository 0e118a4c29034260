// Package watcher runs synchronization passes when documents change on disk.
//
// The document root and every non-hidden directory below it are watched with
// fsnotify; directories created later are added as they appear. Events are
// debounced so a burst of writes produces one pass:
//
//	w, err := watcher.New(watcher.Config{
//	    Root:   "documents",
//	    Syncer: idx,
//	})
//	err = w.Run(ctx)
//
// An event arriving while a pass runs schedules one more pass after it. A pass
// rejected with indexer.ErrSyncInProgress, because another process holds the
// index lock, is retried after the debounce period.
package watcher
