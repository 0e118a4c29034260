package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// syncIndexTool returns the tool definition for sync_index
func syncIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_index",
		Description: "Bring the knowledge base in line with the documents directory, re-embedding only new or changed files",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// rebuildIndexTool returns the tool definition for rebuild_index
func rebuildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_index",
		Description: "Delete every vector and index all documents from scratch",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true; a rebuild re-embeds the whole corpus",
				},
			},
			Required: []string{"confirm"},
		},
	}
}

// askTool returns the tool definition for ask
func askTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the documents in the knowledge base",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question in natural language",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of document chunks used as context (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
				"temperature": map[string]interface{}{
					"type":        "number",
					"description": "Generation temperature (0.0-2.0)",
					"minimum":     0.0,
					"maximum":     2.0,
				},
				"use_history": map[string]interface{}{
					"type":        "boolean",
					"description": "Include and record the conversation history",
					"default":     true,
				},
			},
			Required: []string{"question"},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Return the document chunks most similar to a query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report vector store statistics and whether a synchronization is running",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// clearHistoryTool returns the tool definition for clear_history
func clearHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_history",
		Description: "Forget the conversation history used by ask",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
