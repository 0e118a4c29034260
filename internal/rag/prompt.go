package rag

import (
	"fmt"
	"strings"

	"github.com/dshills/knowledge-rag/pkg/types"
)

// NoResultsAnswer is returned when retrieval finds nothing
const NoResultsAnswer = "No relevant documents found in the knowledge base."

const promptTemplate = `Based on the following context, answer the user's question. If the answer is not in the context, say so.

Context from documents:
%s%s

Current question: %s

Answer:`

// FormatContext renders retrieved chunks as source-labelled blocks
func FormatContext(results []types.SearchResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = "Source: " + r.Source + "\n" + r.Content
	}
	return strings.Join(blocks, "\n\n")
}

// formatConversation renders earlier exchanges, or nothing when there are none
func formatConversation(exchanges []Exchange) string {
	if len(exchanges) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nPrevious conversation:\n")
	for _, e := range exchanges {
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n\n", e.Question, e.Answer)
	}
	return b.String()
}

// BuildPrompt assembles the generation prompt from retrieved chunks and recent exchanges
func BuildPrompt(question string, results []types.SearchResult, recent []Exchange) string {
	return fmt.Sprintf(promptTemplate, FormatContext(results), formatConversation(recent), question)
}
