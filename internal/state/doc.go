// Package state persists the Index State: the mapping from source key to the
// fingerprint, modification time and size of every file currently reflected
// in the vector store.
//
// The state is the commit record of a synchronization pass. It is loaded at
// the start of a pass, rebuilt from the filesystem scan, and saved as a
// complete replacement only after the vector store mutations of the pass have
// been applied. A crash before Save leaves the previous state in place and the
// next pass redetects the same work.
//
// Two backends are provided:
//
//	st := state.NewFileStore(".knowledge-rag/index_state.json") // JSON, atomic rename
//	st, err := state.OpenBoltStore(".knowledge-rag/index_state.db") // bbolt bucket swap
package state
