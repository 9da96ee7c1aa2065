package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sorobansecurityportal/reportpipeline/internal/metrics"
)

// DefaultCycleDelay is the pause between two cycles.
const DefaultCycleDelay = 10 * time.Second

// PipelineConfig holds the settings fixed at process start.
type PipelineConfig struct {
	CycleDelay      time.Duration
	BatchSize       int
	AutoCompactHeap bool
}

// CycleSummary describes one full cycle.
type CycleSummary struct {
	CycleID  string         `json:"cycleId"`
	Stages   []StageSummary `json:"stages"`
	Duration time.Duration  `json:"duration"`
}

// Pipeline is the background worker that repairs report text and backfills
// embeddings for reports and vulnerabilities.
type Pipeline struct {
	store     Store
	converter DocumentConverter
	embedder  EmbeddingProvider
	config    PipelineConfig

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPipeline wires the worker to its collaborators.
func NewPipeline(store Store, converter DocumentConverter, embedder EmbeddingProvider, config PipelineConfig) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if converter == nil {
		return nil, errors.New("document converter is required")
	}
	if embedder == nil {
		return nil, errors.New("embedding provider is required")
	}
	if config.CycleDelay <= 0 {
		config.CycleDelay = DefaultCycleDelay
	}

	return &Pipeline{
		store:     store,
		converter: converter,
		embedder:  embedder,
		config:    config,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Start launches the worker loop in its own goroutine. The loop runs until ctx
// is cancelled or Stop is called.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("pipeline already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go func(done chan struct{}) {
		defer close(done)
		p.Run(runCtx)
	}(p.done)

	slog.Info("Pipeline worker started.", "cycleDelay", p.config.CycleDelay.String(), "batchSize", p.config.BatchSize, "autoCompactHeap", p.config.AutoCompactHeap)
	return nil
}

// Stop cancels the loop and waits for it to return or for ctx to expire.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
		slog.Info("Pipeline worker stopped.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pipeline worker to stop: %w", ctx.Err())
	}
}

// Run executes cycles until ctx is cancelled. Cancellation is not an error.
func (p *Pipeline) Run(ctx context.Context) {
	for ctx.Err() == nil {
		summary, err := p.RunCycle(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err == nil {
			slog.Info("Pipeline cycle complete.", "cycleId", summary.CycleID, "duration", summary.Duration.String(), "stages", summary.Stages)
		}
		if !sleepCtx(ctx, p.config.CycleDelay) {
			return
		}
	}
}

// RunCycle runs every stage once, in order, inside one repository session. Only
// cancellation or a session that cannot be opened is returned as an error; stage
// and item failures are logged and reflected in the summary.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleSummary, error) {
	start := time.Now()
	summary := CycleSummary{CycleID: p.newCycleID()}
	logCtx := slog.With("cycleId", summary.CycleID)

	reclaimMemory(logCtx, p.config.AutoCompactHeap)
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	session, err := p.store.Begin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		metrics.FetchFailures.Add(1)
		logCtx.Error("Failed to open repository session. Skipping cycle.", "error", err)
		return summary, &FetchError{Stage: "session", Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			logCtx.Warn("Failed to release repository session.", "error", err)
		}
	}()

	stages := []func() (StageSummary, error){
		func() (StageSummary, error) {
			stage := &textRepairStage{converter: p.converter, batchSize: p.config.BatchSize}
			return stage.run(ctx, logCtx, session.Reports())
		},
		func() (StageSummary, error) {
			return newReportEmbeddingStage(p.embedder, session.Reports(), p.config.BatchSize).run(ctx, logCtx)
		},
		func() (StageSummary, error) {
			return newVulnerabilityEmbeddingStage(p.embedder, session.Vulnerabilities(), p.config.BatchSize).run(ctx, logCtx)
		},
	}

	for _, run := range stages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		stageSummary, err := run()
		summary.Stages = append(summary.Stages, stageSummary)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			logCtx.Error("Stage skipped for this cycle.", "stage", stageSummary.Stage, "error", err)
		}
	}

	summary.Duration = time.Since(start)
	metrics.CyclesTotal.Add(1)
	return summary, nil
}

func (p *Pipeline) newCycleID() string {
	p.idMu.Lock()
	defer p.idMu.Unlock()
	return ulid.MustNew(ulid.Now(), p.entropy).String()
}

// sleepCtx waits for d and reports whether the wait completed without
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
