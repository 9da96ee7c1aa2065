package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
project_id: audit-portal
store:
  backend: sqlite
  sqlite_path: /tmp/from-yaml.db
embedder:
  type: openai
  api_key: from-yaml
pipeline:
  cycle_delay: 30s
  batch_size: 5
`)
	t.Setenv("SQLITE_PATH", "/tmp/from-env.db")
	t.Setenv("AUTO_COMPACT_HEAP", "true")
	t.Setenv("EMBEDDING_DIMENSION", "768")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.SQLitePath != "/tmp/from-env.db" {
		t.Fatalf("env must override yaml, got %q", cfg.Store.SQLitePath)
	}
	if cfg.Pipeline.CycleDelay != 30*time.Second || cfg.Pipeline.BatchSize != 5 || !cfg.Pipeline.AutoCompactHeap {
		t.Fatalf("unexpected pipeline config %+v", cfg.Pipeline)
	}
	if cfg.Embedder.Model != "text-embedding-3-small" || cfg.Embedder.BaseURL != "https://api.openai.com/v1" || cfg.Embedder.Dimension != 768 {
		t.Fatalf("unexpected embedder config %+v", cfg.Embedder)
	}
	if cfg.Converter.Type != ConverterPDFCPU {
		t.Fatalf("expected pdfcpu converter by default, got %q", cfg.Converter.Type)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", BackendPostgres)
	t.Setenv("DATABASE_URL", "postgres://localhost/portal")
	t.Setenv("PROJECT_ID", "audit-portal")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.CycleDelay != 10*time.Second {
		t.Fatalf("expected 10s delay, got %v", cfg.Pipeline.CycleDelay)
	}
	if cfg.Pipeline.BatchSize != 0 {
		t.Fatalf("expected unlimited batch by default, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Embedder.Type != EmbedderVertex || cfg.Embedder.Model != "text-embedding-004" || cfg.VertexAIRegion != "us-central1" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"CYCLE_DELAY": "soon"}},
		{"bad batch", map[string]string{"BATCH_SIZE": "many"}},
		{"bad bool", map[string]string{"AUTO_COMPACT_HEAP": "maybe"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongo"}},
		{"postgres without url", map[string]string{"STORE_BACKEND": BackendPostgres, "DATABASE_URL": ""}},
		{"firestore without bucket", map[string]string{"STORE_BACKEND": BackendFirestore, "PROJECT_ID": "p", "MARKDOWN_BUCKET": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", BackendSQLite)
			t.Setenv("SQLITE_PATH", "/tmp/x.db")
			t.Setenv("EMBEDDER", EmbedderOpenAI)
			t.Setenv("EMBEDDINGS_API_KEY", "k")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo}
	for in, want := range cases {
		if got := (&Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMissingConfigFileIsLoggedByCaller(t *testing.T) {
	t.Setenv("STORE_BACKEND", BackendSQLite)
	t.Setenv("SQLITE_PATH", "/tmp/pipeline.db")
	t.Setenv("EMBEDDER", EmbedderOpenAI)
	t.Setenv("EMBEDDINGS_API_KEY", "key")
	t.Setenv("FIRESTORE_DATABASE", "audit-reports")
	path := filepath.Join(t.TempDir(), "missing.yaml")

	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(previous)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("Load must not log before the caller installs its logger, got %s", buf.String())
	}
	if cfg.MissingFile != path || cfg.Store.FirestoreDatabase != "audit-reports" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	cfg.LogLoadWarnings()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "WARN" || entry["path"] != path {
		t.Fatalf("unexpected log entry %v", entry)
	}
}
