// Package generator produces answer text from a prompt using a language model.
//
// Providers:
//   - Ollama: POST /api/generate with stream disabled (default model llama3.1:8b)
//   - OpenAI: POST /chat/completions with a single user message
//
// Both take a temperature per call. Errors are returned to the caller; the
// rag package turns them into answer text.
package generator
