package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/knowledge-rag/internal/indexer"
	"github.com/dshills/knowledge-rag/internal/rag"
	"github.com/dshills/knowledge-rag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeSyncInProgress = -32002 // Another synchronization is already running
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
)

// maxReportedErrors bounds the error messages included in a response
const maxReportedErrors = 5

// handleSyncIndex handles the sync_index tool invocation
func (s *Server) handleSyncIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}

	stats, err := s.indexer.Sync(ctx)
	if err != nil {
		return nil, passError("synchronization failed", err)
	}
	return mcp.NewToolResultText(formatJSON(statisticsResponse(stats))), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	if !getBoolDefault(args, "confirm", false) {
		return nil, newMCPError(ErrorCodeInvalidParams, "rebuild requires confirm=true", map[string]interface{}{
			"param":  "confirm",
			"reason": "missing or false",
		})
	}

	stats, err := s.indexer.Rebuild(ctx)
	if err != nil {
		return nil, passError("rebuild failed", err)
	}
	return mcp.NewToolResultText(formatJSON(statisticsResponse(stats))), nil
}

// handleAsk handles the ask tool invocation
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	question := strings.TrimSpace(getStringDefault(args, "question", ""))
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	topK, err := limitParam(args, "top_k", 0)
	if err != nil {
		return nil, err
	}

	opts := rag.AskOptions{
		TopK:      topK,
		NoHistory: !getBoolDefault(args, "use_history", true),
	}
	if temp, ok := getFloat(args, "temperature"); ok {
		if temp < 0 || temp > 2 {
			return nil, newMCPError(ErrorCodeInvalidParams, "temperature must be between 0 and 2", map[string]interface{}{
				"param": "temperature",
				"value": temp,
			})
		}
		opts.Temperature = &temp
	}

	answer, err := s.answerer.Ask(ctx, question, opts)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ask failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"answer":      answer.Text,
		"sources":     sourcesResponse(answer.Sources),
		"duration_ms": answer.Duration.Milliseconds(),
	}
	if answer.Err != nil {
		response["generation_error"] = answer.Err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit, err := limitParam(args, "limit", rag.DefaultTopK)
	if err != nil {
		return nil, err
	}

	results, err := s.answerer.Search(ctx, query, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": resultsResponse(results),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := arguments(request); err != nil {
		return nil, err
	}

	status, err := s.store.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":         status.Records > 0,
		"documents_dir":   s.root,
		"sync_in_process": s.indexer.Busy(),
		"history_entries": s.answerer.History().Len(),
		"statistics": map[string]interface{}{
			"collection":     status.Collection,
			"metric":         status.Metric,
			"dimension":      status.Dimension,
			"records":        status.Records,
			"sources":        status.Sources,
			"schema_version": status.SchemaVersion,
			"build_mode":     status.BuildMode,
			"index_size_mb":  fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearHistory handles the clear_history tool invocation
func (s *Server) handleClearHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	removed := s.answerer.History().Clear()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": removed,
	})), nil
}

// Helper functions

// statisticsResponse formats pass statistics
func statisticsResponse(stats *indexer.Statistics) map[string]interface{} {
	response := map[string]interface{}{
		"pass_id":         stats.PassID,
		"mode":            stats.Mode,
		"files_processed": stats.FilesProcessed,
		"files_removed":   stats.FilesRemoved,
		"files_unchanged": stats.FilesUnchanged,
		"files_failed":    stats.FilesFailed,
		"chunks_created":  stats.ChunksCreated,
		"records_deleted": stats.RecordsDeleted,
		"batches_failed":  stats.BatchesFailed,
		"final_count":     stats.FinalCount,
		"shortfall":       stats.Shortfall,
		"duration_ms":     stats.Duration.Milliseconds(),
	}
	if stats.RebuildReason != "" {
		response["rebuild_reason"] = stats.RebuildReason
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	if len(stats.Warnings) > 0 {
		response["warnings"] = stats.Warnings
	}
	return response
}

func resultsResponse(results []types.SearchResult) []map[string]interface{} {
	out := make([]map[string]interface{}, len(results))
	for i, r := range results {
		out[i] = map[string]interface{}{
			"rank":       r.Rank,
			"id":         r.ID,
			"source":     r.Source,
			"similarity": r.Similarity,
			"content":    r.Content,
		}
	}
	return out
}

// sourcesResponse lists distinct sources in rank order
func sourcesResponse(results []types.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}

// passError maps an indexer error to an MCP error
func passError(message string, err error) error {
	if errors.Is(err, indexer.ErrSyncInProgress) {
		return newMCPError(ErrorCodeSyncInProgress, "a synchronization is already running", nil)
	}
	return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the call arguments; absent arguments are an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// limitParam reads an optional count in [1, rag.MaxTopK]
func limitParam(args map[string]interface{}, key string, defaultValue int) (int, error) {
	if _, present := args[key]; !present {
		return defaultValue, nil
	}
	limit := getIntDefault(args, key, 0)
	if limit < 1 || limit > rag.MaxTopK {
		return 0, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("%s must be between 1 and %d", key, rag.MaxTopK), map[string]interface{}{
			"param": key,
			"value": args[key],
		})
	}
	return limit, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloat extracts a numeric parameter
func getFloat(args map[string]interface{}, key string) (float64, bool) {
	switch val := args[key].(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
