package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sorobansecurityportal/reportpipeline/internal/services"
	"github.com/sorobansecurityportal/reportpipeline/internal/store/sqlite"
)

type upperConverter struct{}

func (upperConverter) Convert(_ context.Context, doc []byte) (string, error) {
	return "# " + string(doc), nil
}

type lengthEmbedder struct{}

func (lengthEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 0.5, -0.5}, nil
}

func TestPipelineAgainstSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	defer db.Close()

	reportID, _ := db.InsertReport(ctx, "Token audit", []byte("findings"))
	emptyID, _ := db.InsertReport(ctx, "Metadata only", nil)
	vulnID, _ := db.InsertVulnerability(ctx, "Missing auth", "Anyone can call mint.")

	p, err := services.NewPipeline(db, upperConverter{}, lengthEmbedder{}, services.PipelineConfig{CycleDelay: time.Second})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	report, err := db.GetReport(ctx, reportID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if report.MdFile != "# findings" || len(report.Embedding) != 3 || report.Embedding[0] != float32(len("# findings")) {
		t.Fatalf("unexpected report %+v", report)
	}

	empty, err := db.GetReport(ctx, emptyID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if empty.MdFile != "" || empty.Embedding != nil {
		t.Fatalf("report without a file must be untouched, got %+v", empty)
	}

	vuln, err := db.GetVulnerability(ctx, vulnID)
	if err != nil {
		t.Fatalf("GetVulnerability: %v", err)
	}
	if len(vuln.Embedding) != 3 {
		t.Fatalf("unexpected vulnerability %+v", vuln)
	}

	summary, err := p.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	for _, s := range summary.Stages {
		if s.Candidates != 0 {
			t.Fatalf("expected a quiet second cycle, got %+v", s)
		}
	}
}
