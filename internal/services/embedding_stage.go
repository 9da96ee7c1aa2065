package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sorobansecurityportal/reportpipeline/internal/metrics"
	"github.com/sorobansecurityportal/reportpipeline/internal/models"
)

const (
	stageReportEmbedding        = "report-embedding"
	stageVulnerabilityEmbedding = "vulnerability-embedding"
)

// embeddingStage computes and stores an embedding for every candidate returned by
// list. Reports and vulnerabilities run through the same stage and differ only in
// the functions below.
type embeddingStage[T any] struct {
	name      string
	provider  EmbeddingProvider
	batchSize int

	list     func(ctx context.Context, limit int) ([]T, error)
	id       func(item T) string
	text     func(item T) string
	write    func(ctx context.Context, id string, embedding models.Embedding) error
	identity func(item T) []any
}

func newReportEmbeddingStage(provider EmbeddingProvider, repo ReportRepository, batchSize int) *embeddingStage[models.Report] {
	return &embeddingStage[models.Report]{
		name:      stageReportEmbedding,
		provider:  provider,
		batchSize: batchSize,
		list:      repo.ListEmbeddingCandidates,
		id:        func(r models.Report) string { return r.ID },
		text:      func(r models.Report) string { return r.MdFile },
		write:     repo.UpdateEmbedding,
		identity:  func(r models.Report) []any { return []any{"reportId", r.ID, "reportName", r.Name} },
	}
}

func newVulnerabilityEmbeddingStage(provider EmbeddingProvider, repo VulnerabilityRepository, batchSize int) *embeddingStage[models.Vulnerability] {
	return &embeddingStage[models.Vulnerability]{
		name:      stageVulnerabilityEmbedding,
		provider:  provider,
		batchSize: batchSize,
		list:      repo.ListEmbeddingCandidates,
		id:        func(v models.Vulnerability) string { return v.ID },
		text:      func(v models.Vulnerability) string { return v.Description },
		write:     repo.UpdateEmbedding,
		identity: func(v models.Vulnerability) []any {
			return []any{"vulnerabilityId", v.ID, "vulnerabilityTitle", v.Title}
		},
	}
}

func (s *embeddingStage[T]) run(ctx context.Context, logCtx *slog.Logger) (StageSummary, error) {
	summary := StageSummary{Stage: s.name}
	logCtx = logCtx.With("stage", s.name)

	items, err := s.list(ctx, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.FetchFailed = true
		metrics.FetchFailures.Add(1)
		return summary, &FetchError{Stage: s.name, Err: err}
	}
	summary.Candidates = len(items)
	logCtx.Debug("Fetched embedding candidates.", "count", len(items))

	for _, item := range items {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		err := guard(func() error { return s.embed(ctx, item) })
		outcome := classify(ctx, err)
		if !summary.record(logCtx, outcome, err, s.identity(item)...) {
			return summary, ctx.Err()
		}
		countOutcome(outcome, metrics.EmbeddingsGenerated)
	}
	return summary, nil
}

func (s *embeddingStage[T]) embed(ctx context.Context, item T) error {
	id := s.id(item)
	text := s.text(item)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: no text to embed", ErrPayloadMissing)
	}

	values, err := s.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return &ProviderError{ItemID: id, Err: err}
	}
	embedding, err := models.NewEmbedding(values)
	if err != nil {
		return &ProviderError{ItemID: id, Err: err}
	}

	if err := s.write(ctx, id, embedding); err != nil {
		return &PersistenceError{ItemID: id, Field: "embedding", Err: err}
	}
	return nil
}
