package services

import (
	"context"
	"log/slog"

	"github.com/sorobansecurityportal/reportpipeline/internal/metrics"
	"github.com/sorobansecurityportal/reportpipeline/internal/models"
)

const stageTextRepair = "text-repair"

// textRepairStage backfills derived text for reports whose binary payload has no
// current text. The candidate query owns staleness; the stage only guards
// against a payload that vanished after listing.
type textRepairStage struct {
	converter DocumentConverter
	batchSize int
}

func (s *textRepairStage) run(ctx context.Context, logCtx *slog.Logger, repo ReportRepository) (StageSummary, error) {
	summary := StageSummary{Stage: stageTextRepair}
	logCtx = logCtx.With("stage", stageTextRepair)

	reports, err := repo.ListConversionCandidates(ctx, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.FetchFailed = true
		metrics.FetchFailures.Add(1)
		return summary, &FetchError{Stage: stageTextRepair, Err: err}
	}
	summary.Candidates = len(reports)
	logCtx.Debug("Fetched conversion candidates.", "count", len(reports))

	for _, report := range reports {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		err := guard(func() error { return s.repair(ctx, repo, report) })
		outcome := classify(ctx, err)
		if !summary.record(logCtx, outcome, err, "reportId", report.ID, "reportName", report.Name) {
			return summary, ctx.Err()
		}
		countOutcome(outcome, metrics.DocumentsConverted)
	}
	return summary, nil
}

func (s *textRepairStage) repair(ctx context.Context, repo ReportRepository, report models.Report) error {
	if len(report.BinFile) == 0 {
		return ErrPayloadMissing
	}

	text, err := s.converter.Convert(ctx, report.BinFile)
	if err != nil {
		return &ConversionError{ItemID: report.ID, Err: err}
	}

	if err := repo.UpdateDerivedText(ctx, report.ID, text); err != nil {
		return &PersistenceError{ItemID: report.ID, Field: "derived text", Err: err}
	}
	return nil
}

func countOutcome(outcome itemOutcome, success interface{ Add(int64) }) {
	switch outcome {
	case itemProcessed:
		success.Add(1)
	case itemSkipped:
		metrics.ItemsSkipped.Add(1)
	case itemFailed:
		metrics.ItemFailures.Add(1)
	}
}
