// Package app builds a Pipeline and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/sorobansecurityportal/reportpipeline/internal/config"
	"github.com/sorobansecurityportal/reportpipeline/internal/convert"
	"github.com/sorobansecurityportal/reportpipeline/internal/embedding"
	"github.com/sorobansecurityportal/reportpipeline/internal/gcp"
	"github.com/sorobansecurityportal/reportpipeline/internal/services"
	fsstore "github.com/sorobansecurityportal/reportpipeline/internal/store/firestore"
	"github.com/sorobansecurityportal/reportpipeline/internal/store/postgres"
	"github.com/sorobansecurityportal/reportpipeline/internal/store/sqlite"
)

// App owns the pipeline and every client it was built with.
type App struct {
	Pipeline *services.Pipeline
	closers  []func() error
}

// New creates the store, converter and embedder selected by cfg. On error,
// everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	converter, err := a.newConverter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := a.newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = services.NewPipeline(st, converter, embedder, services.PipelineConfig{
		CycleDelay:      cfg.Pipeline.CycleDelay,
		BatchSize:       cfg.Pipeline.BatchSize,
		AutoCompactHeap: cfg.Pipeline.AutoCompactHeap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	slog.Info("Pipeline initialized.",
		"storeBackend", cfg.Store.Backend,
		"converter", cfg.Converter.Type,
		"embedder", cfg.Embedder.Type,
		"embeddingModel", cfg.Embedder.Model,
	)
	return a, nil
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (services.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		return s, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil

	case config.BackendFirestore:
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.Store.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, firestoreClient.Close)

		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		a.closers = append(a.closers, storageClient.Close)

		return fsstore.New(firestoreClient, storageClient, fsstore.Config{
			ReportsCollection:         cfg.Store.ReportsCollection,
			VulnerabilitiesCollection: cfg.Store.VulnerabilitiesCollection,
			MarkdownBucket:            cfg.Store.MarkdownBucket,
		}), nil
	}
	return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
}

func (a *App) newConverter(ctx context.Context, cfg *config.Config) (services.DocumentConverter, error) {
	switch cfg.Converter.Type {
	case config.ConverterPDFCPU:
		return convert.NewDispatcher(convert.NewPDFConverter()), nil

	case config.ConverterGemini:
		vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.Converter.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, vertexClient.Close)
		return convert.NewDispatcher(convert.NewGeminiConverter(vertexClient.ConverterModel)), nil
	}
	return nil, fmt.Errorf("unknown converter: %s", cfg.Converter.Type)
}

func (a *App) newEmbedder(ctx context.Context, cfg *config.Config) (services.EmbeddingProvider, error) {
	switch cfg.Embedder.Type {
	case config.EmbedderVertex:
		client, err := gcp.NewPredictionClient(ctx, cfg.VertexAIRegion)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		endpoint := gcp.EmbeddingEndpoint(cfg.ProjectID, cfg.VertexAIRegion, cfg.Embedder.Model)
		return embedding.NewVertexEmbedder(client, endpoint, cfg.Embedder.Dimension, cfg.Embedder.RateLimit), nil

	case config.EmbedderOpenAI:
		return embedding.NewOpenAIClient(embedding.OpenAIConfig{
			BaseURL:   cfg.Embedder.BaseURL,
			APIKey:    cfg.Embedder.APIKey,
			Model:     cfg.Embedder.Model,
			Dimension: cfg.Embedder.Dimension,
			RateLimit: cfg.Embedder.RateLimit,
			Timeout:   time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
		})
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
}
