package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Converter implementations.
const (
	ConverterPDFCPU = "pdfcpu"
	ConverterGemini = "gemini"
)

// Embedder implementations.
const (
	EmbedderVertex = "vertex"
	EmbedderOpenAI = "openai"
)

// StoreConfig selects and configures the work-item store.
type StoreConfig struct {
	Backend                   string `yaml:"backend"`
	DatabaseURL               string `yaml:"database_url"`
	SQLitePath                string `yaml:"sqlite_path"`
	FirestoreDatabase         string `yaml:"firestore_database"`
	ReportsCollection         string `yaml:"reports_collection"`
	VulnerabilitiesCollection string `yaml:"vulnerabilities_collection"`
	MarkdownBucket            string `yaml:"markdown_bucket"`
}

// ConverterConfig selects the document converter.
type ConverterConfig struct {
	Type  string `yaml:"type"`
	Model string `yaml:"model"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	Dimension   int     `yaml:"dimension"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	RateLimit   float64 `yaml:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// PipelineConfig holds the worker loop settings.
type PipelineConfig struct {
	CycleDelay      time.Duration `yaml:"cycle_delay"`
	BatchSize       int           `yaml:"batch_size"`
	AutoCompactHeap bool          `yaml:"auto_compact_heap"`
}

// Config is the root configuration of the report pipeline.
type Config struct {
	ProjectID      string          `yaml:"project_id"`
	VertexAIRegion string          `yaml:"vertex_ai_region"`
	LogLevel       string          `yaml:"log_level"`
	MetricsAddr    string          `yaml:"metrics_addr"`
	Store          StoreConfig     `yaml:"store"`
	Converter      ConverterConfig `yaml:"converter"`
	Embedder       EmbedderConfig  `yaml:"embedder"`
	Pipeline       PipelineConfig  `yaml:"pipeline"`

	// MissingFile is the config path Load was given but could not find.
	MissingFile string `yaml:"-"`
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Load reads .env files, then the optional YAML file at path, then applies
// environment overrides and defaults. A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var missing string
	if path == "" {
		path = GetEnv("PIPELINE_CONFIG", "")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			missing = path
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	cfg.MissingFile = missing
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogLoadWarnings reports what Load noticed, once the caller has installed its
// logger.
func (c *Config) LogLoadWarnings() {
	if c.MissingFile != "" {
		slog.Warn("Config file not found. Using environment only.", "path", c.MissingFile)
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.ProjectID, "PROJECT_ID")
	setString(&cfg.VertexAIRegion, "VERTEX_AI_REGION")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.MetricsAddr, "METRICS_ADDR")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Store.FirestoreDatabase, "FIRESTORE_DATABASE")
	setString(&cfg.Store.ReportsCollection, "FIRESTORE_REPORTS_COLLECTION")
	setString(&cfg.Store.VulnerabilitiesCollection, "FIRESTORE_VULNERABILITIES_COLLECTION")
	setString(&cfg.Store.MarkdownBucket, "MARKDOWN_BUCKET")

	setString(&cfg.Converter.Type, "CONVERTER")
	setString(&cfg.Converter.Model, "CONVERTER_MODEL")

	setString(&cfg.Embedder.Type, "EMBEDDER")
	setString(&cfg.Embedder.Model, "EMBEDDING_MODEL")
	setString(&cfg.Embedder.BaseURL, "EMBEDDINGS_URL")
	setString(&cfg.Embedder.APIKey, "EMBEDDINGS_API_KEY")

	if v := GetEnv("EMBEDDING_DIMENSION", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMBEDDING_DIMENSION must be an integer: %w", err)
		}
		cfg.Embedder.Dimension = n
	}
	if v := GetEnv("EMBEDDING_RATE_LIMIT", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("EMBEDDING_RATE_LIMIT must be a number: %w", err)
		}
		cfg.Embedder.RateLimit = f
	}
	if v := GetEnv("CYCLE_DELAY", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CYCLE_DELAY must be a duration: %w", err)
		}
		cfg.Pipeline.CycleDelay = d
	}
	if v := GetEnv("BATCH_SIZE", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BATCH_SIZE must be an integer: %w", err)
		}
		cfg.Pipeline.BatchSize = n
	}
	if v := GetEnv("AUTO_COMPACT_HEAP", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_COMPACT_HEAP must be a boolean: %w", err)
		}
		cfg.Pipeline.AutoCompactHeap = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(GetEnv(key, "")); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.VertexAIRegion == "" {
		cfg.VertexAIRegion = "us-central1"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendPostgres
	}
	if cfg.Store.ReportsCollection == "" {
		cfg.Store.ReportsCollection = "reports"
	}
	if cfg.Store.VulnerabilitiesCollection == "" {
		cfg.Store.VulnerabilitiesCollection = "vulnerabilities"
	}
	if cfg.Converter.Type == "" {
		cfg.Converter.Type = ConverterPDFCPU
	}
	if cfg.Converter.Model == "" {
		cfg.Converter.Model = "gemini-1.5-pro"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = EmbedderVertex
	}
	if cfg.Embedder.Model == "" {
		if cfg.Embedder.Type == EmbedderOpenAI {
			cfg.Embedder.Model = "text-embedding-3-small"
		} else {
			cfg.Embedder.Model = "text-embedding-004"
		}
	}
	if cfg.Embedder.Type == EmbedderOpenAI && cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 60
	}
	if cfg.Pipeline.CycleDelay == 0 {
		cfg.Pipeline.CycleDelay = 10 * time.Second
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set for the postgres store")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be set for the sqlite store")
		}
	case BackendFirestore:
		if c.ProjectID == "" {
			return errors.New("PROJECT_ID must be set for the firestore store")
		}
		if c.Store.MarkdownBucket == "" {
			return errors.New("MARKDOWN_BUCKET must be set for the firestore store")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	switch c.Converter.Type {
	case ConverterPDFCPU:
	case ConverterGemini:
		if c.ProjectID == "" {
			return errors.New("PROJECT_ID must be set for the gemini converter")
		}
	default:
		return fmt.Errorf("unknown converter: %s", c.Converter.Type)
	}

	switch c.Embedder.Type {
	case EmbedderVertex:
		if c.ProjectID == "" {
			return errors.New("PROJECT_ID must be set for the vertex embedder")
		}
	case EmbedderOpenAI:
		if c.Embedder.APIKey == "" {
			return errors.New("EMBEDDINGS_API_KEY must be set for the openai embedder")
		}
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}

	if c.Pipeline.CycleDelay < 0 {
		return errors.New("cycle delay must not be negative")
	}
	if c.Pipeline.BatchSize < 0 {
		return errors.New("batch size must not be negative")
	}
	if c.Embedder.Dimension < 0 {
		return errors.New("embedding dimension must not be negative")
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
