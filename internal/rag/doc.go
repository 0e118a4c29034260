// Package rag answers questions from the documents in the vector store.
//
// Ask embeds the question, retrieves the closest chunks, builds a prompt from
// them and the recent conversation, and asks the generator for an answer.
// Generation failures are returned as the answer text so a chat session keeps
// going; retrieval failures are returned as errors.
package rag
