package cli

import (
	"context"
	"fmt"
	"time"

	"neurodb/config"
	"neurodb/internal/adapter/cache"
	"neurodb/internal/adapter/chunker"
	"neurodb/internal/adapter/embedding"
	"neurodb/internal/adapter/extract"
	"neurodb/internal/adapter/fs"
	"neurodb/internal/adapter/retriever"
	"neurodb/internal/adapter/store"
	"neurodb/internal/usecase"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg      *config.Config
	store    store.Store
	docs     *usecase.DocumentStore
	gateway  *embedding.Gateway
	pipeline *usecase.Pipeline
	walker   *fs.Walker
	index    *usecase.IndexUseCase
}

func openApp(ctx context.Context) (*app, error) {
	cfg := GetConfig()

	st, err := store.Open(cfg, GetRootDir(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := store.StampConfig(ctx, st, cfg); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to stamp config: %w", err)
	}
	migration, err := store.CheckMigration(ctx, st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	if migration.ConfigChanged {
		logger.Warn("configuration drift", "reason", migration.Reason,
			"stored", migration.StoredHash, "current", migration.CurrentHash)
	}

	docs := usecase.NewDocumentStore(st, logger)
	queryCache := cache.NewVectorCache(cfg.Search.CacheSize, time.Duration(cfg.Search.CacheTTLSecs)*time.Second)
	gateway := embedding.NewGatewayFromConfig(cfg.Embedding,
		embedding.WithQueryCache(queryCache),
		embedding.WithLogger(logger),
	)
	searcher := retriever.NewSemanticRetriever(docs, logger)
	chk := chunker.NewTextChunker(cfg.Chunk.Size, cfg.Chunk.Overlap)

	pipeline := usecase.NewPipeline(docs, chk, gateway, searcher, usecase.PipelineOptions{
		DefaultLimit:    cfg.Search.DefaultLimit,
		ReplaceExisting: cfg.Ingest.ReplaceExisting,
		Extractor:       extract.NewExtractor(),
		MetadataReader:  extract.NewMetadataReader(),
		Logger:          logger,
	})
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)

	return &app{
		cfg:      cfg,
		store:    st,
		docs:     docs,
		gateway:  gateway,
		pipeline: pipeline,
		walker:   walker,
		index:    usecase.NewIndexUseCase(pipeline, docs, walker, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
