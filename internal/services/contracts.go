package services

import (
	"context"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
)

// ReportRepository is the report side of the work-item store. List calls return
// at most limit candidates; a limit <= 0 means no limit.
type ReportRepository interface {
	// ListConversionCandidates returns reports with a binary payload whose
	// derived text is absent or was produced from a different payload.
	ListConversionCandidates(ctx context.Context, limit int) ([]models.Report, error)
	// UpdateDerivedText sets only the derived text of one report.
	UpdateDerivedText(ctx context.Context, reportID, text string) error
	// ListEmbeddingCandidates returns reports with derived text whose embedding
	// is absent or was computed from different text.
	ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Report, error)
	// UpdateEmbedding replaces only the embedding of one report.
	UpdateEmbedding(ctx context.Context, reportID string, embedding models.Embedding) error
}

// VulnerabilityRepository is the vulnerability side of the work-item store.
type VulnerabilityRepository interface {
	// ListEmbeddingCandidates returns vulnerabilities whose embedding is absent or
	// was computed from a different description.
	ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Vulnerability, error)
	// UpdateEmbedding replaces only the embedding of one vulnerability.
	UpdateEmbedding(ctx context.Context, vulnerabilityID string, embedding models.Embedding) error
}

// Session is a set of short-lived repository handles valid for one cycle.
type Session interface {
	Reports() ReportRepository
	Vulnerabilities() VulnerabilityRepository
	Close() error
}

// Store opens one Session per cycle.
type Store interface {
	Begin(ctx context.Context) (Session, error)
}

// DocumentConverter turns a stored binary document into text.
type DocumentConverter interface {
	Convert(ctx context.Context, document []byte) (string, error)
}

// EmbeddingProvider turns text into a vector. It returns either a full vector or
// an error, never a partial result.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}
