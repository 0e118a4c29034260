// Package reconciler turns a change set into the vector store mutations that
// bring the index back in line with the filesystem.
//
// Every removed or changed source gets a delete-by-source filter, because a
// shorter new version would otherwise leave stale trailing chunks behind.
// Every changed source is then read, chunked and emitted as inserts. Work is
// grouped per source into Units so callers can order a source's delete
// before its inserts while running different sources concurrently.
package reconciler
