package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dshills/knowledge-rag/internal/config"
	"github.com/dshills/knowledge-rag/internal/detector"
	"github.com/dshills/knowledge-rag/internal/indexer"
	"github.com/dshills/knowledge-rag/internal/logging"
	"github.com/dshills/knowledge-rag/internal/mcp"
	"github.com/dshills/knowledge-rag/internal/rag"
	"github.com/dshills/knowledge-rag/internal/storage"
	"github.com/dshills/knowledge-rag/internal/watcher"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `Usage: knowledge-rag [--config=path] <command> [args]

Commands:
  sync                 Synchronize the index with the documents directory
  rebuild              Discard the index and re-embed every document
  ask [question]       Answer a question (interactive when no question is given)
  search <query>       Show the closest chunks
  status               Show index statistics
  watch                Synchronize whenever documents change
  serve                Run the MCP server on stdio
`

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("knowledge-rag\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (default: ./knowledge-rag.yaml or the user config)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var (
		cfg *config.Config
		err error
	)
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout carries command output and the MCP protocol
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	if cfgPath != "" {
		logger.Debug("configuration loaded", "path", cfgPath)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, logger, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string, args []string) error {
	switch command {
	case "sync", "rebuild", "ask", "search", "status", "watch", "serve":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch command {
	case "sync":
		stats, err := a.indexer.Sync(ctx)
		if err != nil {
			return err
		}
		printStatistics(os.Stdout, stats)
	case "rebuild":
		stats, err := a.indexer.Rebuild(ctx)
		if err != nil {
			return err
		}
		printStatistics(os.Stdout, stats)
	case "ask":
		return a.ask(ctx, args)
	case "search":
		return a.search(ctx, args)
	case "status":
		return a.status(ctx)
	case "watch":
		return a.watch(ctx)
	case "serve":
		return a.serve(ctx)
	}
	return nil
}

func (a *app) ask(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	topK := fs.Int("k", 0, "Chunks retrieved per question (default from config)")
	noHistory := fs.Bool("no-history", false, "Ignore conversation history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// An empty index is synchronized before the first question
	count, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		a.logger.Info("index is empty, synchronizing first")
		stats, err := a.indexer.Sync(ctx)
		if err != nil {
			return err
		}
		printStatistics(os.Stderr, stats)
	}

	opts := rag.AskOptions{TopK: *topK, NoHistory: *noHistory}
	if fs.NArg() > 0 {
		return a.answer(ctx, os.Stdout, strings.Join(fs.Args(), " "), opts)
	}

	return a.chat(ctx, os.Stdin, os.Stdout, opts)
}

// chat runs an interactive session reading one question per line
func (a *app) chat(ctx context.Context, in io.Reader, out io.Writer, opts rag.AskOptions) error {
	fmt.Fprintln(out, "Ask a question. Commands: reindex, clear, quit")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var err error
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "clear":
			fmt.Fprintf(out, "Cleared %d exchanges\n", a.answerer.History().Clear())
			continue
		case "reindex":
			var stats *indexer.Statistics
			if stats, err = a.indexer.Sync(ctx); err == nil {
				printStatistics(out, stats)
			}
		default:
			err = a.answer(ctx, out, line, opts)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func (a *app) answer(ctx context.Context, out io.Writer, question string, opts rag.AskOptions) error {
	ans, err := a.answerer.Ask(ctx, question, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		seen := make(map[string]bool)
		for _, r := range ans.Sources {
			if seen[r.Source] {
				continue
			}
			seen[r.Source] = true
			fmt.Fprintf(out, "  - %s\n", r.Source)
		}
	}
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	limit := fs.Int("limit", rag.DefaultTopK, "Maximum results (1-100)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("search requires a query")
	}
	if *limit < 1 || *limit > rag.MaxTopK {
		return fmt.Errorf("limit must be between 1 and %d", rag.MaxTopK)
	}

	results, err := a.answerer.Search(ctx, strings.Join(fs.Args(), " "), *limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%d. %s (%s) similarity %.3f\n", r.Rank, r.Source, r.ID, r.Similarity)
		fmt.Printf("   %s\n", preview(r.Content, 200))
	}
	return nil
}

func (a *app) status(ctx context.Context) error {
	st, err := a.store.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Documents:   %s\n", a.root)
	fmt.Printf("Collection:  %s (%s)\n", st.Collection, st.Metric)
	fmt.Printf("Records:     %d from %d sources\n", st.Records, st.Sources)
	fmt.Printf("Dimension:   %d\n", st.Dimension)
	fmt.Printf("Schema:      %s\n", st.SchemaVersion)
	fmt.Printf("Build Mode:  %s\n", st.BuildMode)
	fmt.Printf("Index Size:  %.2f MB\n", st.IndexSizeMB)
	fmt.Printf("Sync Active: %v\n", a.indexer.Busy())
	return nil
}

func (a *app) watch(ctx context.Context) error {
	filter := detector.New(a.cfg.DetectorOptions())
	w, err := watcher.New(watcher.Config{
		Root:        a.root,
		Syncer:      a.indexer,
		Debounce:    a.cfg.WatchDebounce(),
		Filter:      filter.Supported,
		SyncOnStart: true,
		OnSync: func(stats *indexer.Statistics, err error) {
			if err == nil && !stats.NoOp() {
				printStatistics(os.Stdout, stats)
			}
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) serve(ctx context.Context) error {
	server, err := mcp.NewServer(mcp.Deps{
		Indexer:  a.indexer,
		Answerer: a.answerer,
		Store:    a.store,
		Root:     a.root,
		Version:  version,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	a.logger.Info("MCP server ready, listening on stdio",
		"version", version, "build_mode", storage.BuildMode, "driver", storage.DriverName)
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

func printStatistics(w io.Writer, stats *indexer.Statistics) {
	fmt.Fprintf(w, "Pass %s (%s", stats.PassID, stats.Mode)
	if stats.RebuildReason != "" {
		fmt.Fprintf(w, ": %s", stats.RebuildReason)
	}
	fmt.Fprintf(w, ") in %s\n", stats.Duration.Round(1e6))
	fmt.Fprintf(w, "  processed %d, removed %d, unchanged %d, failed %d\n",
		stats.FilesProcessed, stats.FilesRemoved, stats.FilesUnchanged, stats.FilesFailed)
	fmt.Fprintf(w, "  chunks created %d, records deleted %d, batches failed %d\n",
		stats.ChunksCreated, stats.RecordsDeleted, stats.BatchesFailed)
	fmt.Fprintf(w, "  records in store %d", stats.FinalCount)
	if stats.Shortfall > 0 {
		fmt.Fprintf(w, " (%d short of expected %d)", stats.Shortfall, stats.Expected)
	}
	fmt.Fprintln(w)
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
	for _, msg := range stats.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", msg)
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
