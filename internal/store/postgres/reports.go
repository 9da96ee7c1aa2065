package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

const listConversionCandidatesSQL = `
	SELECT id, COALESCE(name, ''), bin_file
	FROM reports
	WHERE bin_file IS NOT NULL
	  AND md_source_hash IS DISTINCT FROM encode(sha256(bin_file), 'hex')
	ORDER BY id
	LIMIT $1`

const updateDerivedTextSQL = `
	UPDATE reports
	SET md_file = $2,
	    md_source_hash = COALESCE($3::text, encode(sha256(bin_file), 'hex'))
	WHERE id = $1`

const listEmbeddingCandidatesSQL = `
	SELECT id, COALESCE(name, ''), md_file
	FROM reports
	WHERE md_file IS NOT NULL AND md_file <> ''
	  AND embedding_source_hash IS DISTINCT FROM encode(sha256(convert_to(md_file, 'UTF8')), 'hex')
	ORDER BY id
	LIMIT $1`

const updateReportEmbeddingSQL = `
	UPDATE reports
	SET embedding = $2,
	    embedding_source_hash = COALESCE($3::text, encode(sha256(convert_to(md_file, 'UTF8')), 'hex'))
	WHERE id = $1`

type reportRepository struct {
	conn             conn
	textSources      *store.SourceHashes
	embeddingSources *store.SourceHashes
}

func (r *reportRepository) ListConversionCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	rows, err := r.conn.Query(ctx, listConversionCandidatesSQL, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query conversion candidates: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var (
			id     int64
			report models.Report
		)
		if err := rows.Scan(&id, &report.Name, &report.BinFile); err != nil {
			return nil, fmt.Errorf("scan conversion candidate: %w", err)
		}
		report.ID = strconv.FormatInt(id, 10)
		r.textSources.Remember(report.ID, models.ContentHash(report.BinFile))
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversion candidates: %w", err)
	}
	return reports, nil
}

func (r *reportRepository) UpdateDerivedText(ctx context.Context, reportID, text string) error {
	id, err := parseID("report", reportID)
	if err != nil {
		return err
	}
	tag, err := r.conn.Exec(ctx, updateDerivedTextSQL, id, text, optionalHash(r.textSources, reportID))
	if err != nil {
		return fmt.Errorf("update md_file: %w", err)
	}
	return checkAffected(tag, "report", reportID)
}

func (r *reportRepository) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	rows, err := r.conn.Query(ctx, listEmbeddingCandidatesSQL, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query report embedding candidates: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var (
			id     int64
			report models.Report
		)
		if err := rows.Scan(&id, &report.Name, &report.MdFile); err != nil {
			return nil, fmt.Errorf("scan report embedding candidate: %w", err)
		}
		report.ID = strconv.FormatInt(id, 10)
		r.embeddingSources.Remember(report.ID, models.ContentHash([]byte(report.MdFile)))
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report embedding candidates: %w", err)
	}
	return reports, nil
}

func (r *reportRepository) UpdateEmbedding(ctx context.Context, reportID string, embedding models.Embedding) error {
	id, err := parseID("report", reportID)
	if err != nil {
		return err
	}
	vec := pgvector.NewVector(embedding.Slice())
	tag, err := r.conn.Exec(ctx, updateReportEmbeddingSQL, id, vec, optionalHash(r.embeddingSources, reportID))
	if err != nil {
		return fmt.Errorf("update report embedding: %w", err)
	}
	return checkAffected(tag, "report", reportID)
}
