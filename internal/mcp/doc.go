// Package mcp implements the Model Context Protocol (MCP) server for knowledge-rag.
//
// The MCP server exposes the knowledge base to AI assistants through six tools:
//   - sync_index: Bring the vector index in line with the documents directory
//   - rebuild_index: Discard the index and re-embed every document
//   - ask: Answer a question from retrieved chunks
//   - search: Return the chunks closest to a query
//   - get_status: Report index statistics
//   - clear_history: Forget the conversation history
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	knowledge-rag serve
//
// # Tool: sync_index
//
// Runs one incremental pass. Only new, modified and removed documents are
// touched:
//
//	Response:
//	{
//	  "pass_id": "6c1f...",
//	  "mode": "sync",
//	  "files_processed": 2,
//	  "files_removed": 1,
//	  "files_unchanged": 40,
//	  "chunks_created": 9,
//	  "final_count": 812,
//	  "shortfall": 0
//	}
//
// Up to five error messages are included; error_count carries the total.
//
// # Tool: rebuild_index
//
// Same response as sync_index. Requires "confirm": true.
//
// # Tool: ask
//
//	Request:
//	{
//	  "name": "ask",
//	  "arguments": {
//	    "question": "How do I rotate the API keys?",
//	    "top_k": 5,
//	    "temperature": 0.7,
//	    "use_history": true
//	  }
//	}
//
//	Response:
//	{
//	  "answer": "...",
//	  "sources": ["ops/keys.md", "faq.txt"]
//	}
//
// A generation failure still produces an answer; generation_error holds the cause.
//
// # Tool: search
//
// Takes "query" and an optional "limit" (1-100, default 5). Each result
// carries rank, id, source, similarity and content.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (storage, embedding provider, etc.)
//   - -32002: Synchronization in progress
//   - -32004: Empty question or query
//
// # Logging
//
// stdout is reserved for the protocol. All logging goes to stderr through
// the slog logger passed in Deps.
package mcp
