package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/sorobansecurityportal/reportpipeline/internal/app"
	"github.com/sorobansecurityportal/reportpipeline/internal/config"
)

var (
	pipelineApp *app.App
	once        sync.Once
	initErr     error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("RunPipelineCycle", runPipelineCycle)
}

// main is required by the Go Functions Framework.
func main() {}

// runPipelineCycle runs exactly one cycle per event, e.g. a report upload
// notification or a Cloud Scheduler tick.
func runPipelineCycle(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load("")
		if initErr != nil {
			return
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		cfg.LogLoadWarnings()
		pipelineApp, initErr = app.New(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	logCtx := slog.With("eventId", e.ID(), "eventType", e.Type(), "eventSource", e.Source())
	logCtx.Info("Pipeline cycle triggered.")

	summary, err := pipelineApp.Pipeline.RunCycle(ctx)
	if err != nil {
		logCtx.Error("Pipeline cycle failed.", "error", err)
		return err
	}
	logCtx.Info("Pipeline cycle complete.", "cycleId", summary.CycleID, "duration", summary.Duration.String(), "stages", summary.Stages)
	return nil
}
