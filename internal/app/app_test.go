package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sorobansecurityportal/reportpipeline/internal/config"
)

func TestNewWithLocalBackends(t *testing.T) {
	cfg := &config.Config{
		Store:     config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "pipeline.db")},
		Converter: config.ConverterConfig{Type: config.ConverterPDFCPU},
		Embedder:  config.EmbedderConfig{Type: config.EmbedderOpenAI, Model: "nomic-embed-text", BaseURL: "http://127.0.0.1:11434/v1", APIKey: "unused"},
	}

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Pipeline == nil {
		t.Fatal("expected a pipeline")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: "mongo"}}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
