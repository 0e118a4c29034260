// Package types provides shared type definitions for the knowledge-rag index.
//
// This package defines domain types used across the synchronization pipeline,
// the vector store adapter and the retrieval layer.
//
// # Core Types
//
// SourceFile describes one document under the watched root:
//
//	file := types.SourceFile{
//	    Key:         "notes/todo.md",
//	    Fingerprint: "9f86d081884c7d65...",
//	    ModifiedAt:  info.ModTime(),
//	    SizeBytes:   info.Size(),
//	}
//
// Chunk is one overlapping window of a document's text. Its ID binds it to its
// source and its position in split order:
//
//	types.ChunkID("notes/todo.md", 3) // "notes/todo.md_chunk_3"
//
// VectorRecord is the unit stored in the vector index:
//
//	rec := types.VectorRecord{
//	    ID:       chunk.ID,
//	    Vector:   embedding,
//	    Text:     chunk.Text,
//	    Metadata: types.Metadata{Source: chunk.SourceKey},
//	}
//
// # Identity
//
// Chunk IDs are stable as long as the document text and the chunking
// parameters are unchanged. Renaming a file changes its key and therefore every
// chunk ID derived from it; a rename is handled as delete + add.
package types
