package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/knowledge-rag/internal/indexer"
	"github.com/dshills/knowledge-rag/internal/rag"
	"github.com/dshills/knowledge-rag/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "knowledge-rag"
)

// Indexer runs synchronization passes
type Indexer interface {
	Sync(ctx context.Context) (*indexer.Statistics, error)
	Rebuild(ctx context.Context) (*indexer.Statistics, error)
	Busy() bool
}

// Deps are the components the server exposes
type Deps struct {
	Indexer  Indexer
	Answerer *rag.Answerer
	Store    storage.Store
	Root     string // Document root, reported by get_status
	Version  string
	Logger   *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	indexer  Indexer
	answerer *rag.Answerer
	store    storage.Store
	root     string
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Indexer == nil || deps.Answerer == nil || deps.Store == nil {
		return nil, errors.New("mcp: indexer, answerer and store are required")
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, deps.Version),
		indexer:  deps.Indexer,
		answerer: deps.Answerer,
		store:    deps.Store,
		root:     deps.Root,
		logger:   deps.Logger,
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is done or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs the MCP protocol over the given streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(syncIndexTool(), s.handleSyncIndex)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	s.mcp.AddTool(askTool(), s.handleAsk)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(clearHistoryTool(), s.handleClearHistory)
}
