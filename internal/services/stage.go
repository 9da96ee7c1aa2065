package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// StageSummary describes one stage run within a cycle.
type StageSummary struct {
	Stage       string `json:"stage"`
	Candidates  int    `json:"candidates"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	FetchFailed bool   `json:"fetchFailed"`
}

// String renders the summary for log lines.
func (s StageSummary) String() string {
	return fmt.Sprintf("%s: %d candidates, %d processed, %d skipped, %d failed", s.Stage, s.Candidates, s.Processed, s.Skipped, s.Failed)
}

// itemOutcome classifies the result of processing one candidate.
type itemOutcome int

const (
	itemProcessed itemOutcome = iota
	itemSkipped
	itemFailed
	itemCancelled
)

// classify maps an item error onto an outcome. Errors caused by cancellation of
// the cycle are not item failures.
func classify(ctx context.Context, err error) itemOutcome {
	switch {
	case err == nil:
		return itemProcessed
	case ctx.Err() != nil:
		return itemCancelled
	case errors.Is(err, ErrPayloadMissing):
		return itemSkipped
	default:
		return itemFailed
	}
}

// guard runs fn and turns a panic raised by a converter or provider library into
// an error so one bad document cannot take the worker down.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic: %v", r)
		}
	}()
	return fn()
}

// record folds an outcome into the summary and logs failures with the item's
// identity. It returns false when the stage must stop because the cycle was
// cancelled.
func (s *StageSummary) record(logCtx *slog.Logger, outcome itemOutcome, err error, identity ...any) bool {
	switch outcome {
	case itemProcessed:
		s.Processed++
	case itemSkipped:
		s.Skipped++
		logCtx.Debug("Skipping candidate.", append(identity, "reason", err.Error())...)
	case itemFailed:
		s.Failed++
		logCtx.Error("Failed to process candidate.", append(identity, "error", err)...)
	case itemCancelled:
		return false
	}
	return true
}
