package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sorobansecurityportal/reportpipeline/internal/app"
	"github.com/sorobansecurityportal/reportpipeline/internal/config"
	"github.com/sorobansecurityportal/reportpipeline/internal/store/sqlite"
)

const usage = `report-pipeline: backfills report text and embeddings for the security portal

Usage:
  report-pipeline run    [-config <path>]   run cycles until interrupted
  report-pipeline once   [-config <path>]   run a single cycle and print its summary
  report-pipeline import [-config <path>] -name <name> -file <path>
                                            add a report to the sqlite store

Configuration is read from the YAML file (or PIPELINE_CONFIG), .env and the
environment. See internal/config for the keys.
`

const shutdownTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = runWorker(ctx, args)
	case "once":
		err = runOnce(ctx, args)
	case "import":
		err = runImport(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("Command failed.", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared -config flag plus any command flags registered
// by register, then installs the JSON logger.
func loadConfig(name string, args []string, register func(*flag.FlagSet)) (*config.Config, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	configPath := flags.String("config", "", "YAML config file (or PIPELINE_CONFIG)")
	if register != nil {
		register(flags)
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	cfg.LogLoadWarnings()
	return cfg, nil
}

func runWorker(ctx context.Context, args []string) error {
	cfg, err := loadConfig("run", args, nil)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Failed to close clients.", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Pipeline.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Pipeline.Stop(stopCtx)
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/vars", expvar.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("Metrics server listening.", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func runOnce(ctx context.Context, args []string) error {
	cfg, err := loadConfig("once", args, nil)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Pipeline.RunCycle(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func runImport(ctx context.Context, args []string) error {
	var name, file string
	cfg, err := loadConfig("import", args, func(flags *flag.FlagSet) {
		flags.StringVar(&name, "name", "", "Report name (defaults to the file name)")
		flags.StringVar(&file, "file", "", "PDF or HTML report to import")
	})
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.BackendSQLite {
		return fmt.Errorf("import only supports the sqlite store, got %s", cfg.Store.Backend)
	}
	if file == "" {
		return errors.New("-file is required")
	}
	if name == "" {
		name = filepath.Base(file)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	db, err := sqlite.Open(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.InsertReport(ctx, name, data)
	if err != nil {
		return err
	}
	slog.Info("Report imported.", "reportId", id, "reportName", name, "bytes", len(data))
	return nil
}
