package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dshills/knowledge-rag/internal/chunker"
	"github.com/dshills/knowledge-rag/internal/config"
	"github.com/dshills/knowledge-rag/internal/detector"
	"github.com/dshills/knowledge-rag/internal/embedder"
	"github.com/dshills/knowledge-rag/internal/generator"
	"github.com/dshills/knowledge-rag/internal/indexer"
	"github.com/dshills/knowledge-rag/internal/rag"
	"github.com/dshills/knowledge-rag/internal/state"
	"github.com/dshills/knowledge-rag/internal/storage"
)

// app holds the wired components. The embedder is shared by the indexer
// and the answerer so both use the same cache and vector space.
type app struct {
	cfg      *config.Config
	root     string
	logger   *slog.Logger
	store    *storage.SQLiteStorage
	states   state.Store
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	answerer *rag.Answerer
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	if err := detector.EnsureRoot(cfg.DocumentsDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a = &app{cfg: cfg, root: cfg.DocumentsDir, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = storage.NewSQLiteStorage(ctx, storage.Options{
		Path:       cfg.DatabasePath(),
		Collection: cfg.Storage.Collection,
		Metric:     cfg.Storage.Metric,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	a.states, err = state.Open(cfg.Storage.StateBackend, cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open index state: %w", err)
	}

	a.embedder, err = embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chunks, err := chunker.New(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	a.indexer, err = indexer.New(indexer.Config{
		Root:      cfg.DocumentsDir,
		Detector:  cfg.DetectorOptions(),
		Chunker:   chunks,
		Embedder:  a.embedder,
		Store:     a.store,
		State:     a.states,
		Workers:   cfg.Workers(),
		BatchSize: cfg.Index.BatchSize,
		LockPath:  cfg.LockPath(),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	gen, err := generator.New(cfg.GeneratorConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	a.answerer, err = rag.New(rag.Config{
		Embedder:        a.embedder,
		Store:           a.store,
		Generator:       gen,
		TopK:            cfg.Chat.TopK,
		HistoryWindow:   cfg.Chat.HistoryWindow,
		HistoryCapacity: cfg.Chat.HistoryCapacity,
		Temperature:     cfg.Generation.Temperature,
		Model:           cfg.Generation.Model,
		QueryCacheSize:  cfg.Chat.QueryCacheSize,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the store, state and embedder
func (a *app) Close() {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.states != nil {
		errs = append(errs, a.states.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close failed", "error", err)
	}
}
