package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

type reportRepository struct {
	conn             querier
	textSources      *store.SourceHashes
	embeddingSources *store.SourceHashes
}

func (r *reportRepository) ListConversionCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, name, bin_file, bin_file_hash
		FROM reports
		WHERE bin_file IS NOT NULL
		  AND (md_source_hash IS NULL OR md_source_hash <> bin_file_hash)
		ORDER BY id
		LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion candidates: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var (
			id     int64
			hash   string
			report models.Report
		)
		if err := rows.Scan(&id, &report.Name, &report.BinFile, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan conversion candidate: %w", err)
		}
		report.ID = strconv.FormatInt(id, 10)
		r.textSources.Remember(report.ID, hash)
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (r *reportRepository) UpdateDerivedText(ctx context.Context, reportID, text string) error {
	sourceHash, ok := r.textSources.Lookup(reportID)
	if !ok {
		if err := r.conn.QueryRowContext(ctx, `SELECT COALESCE(bin_file_hash, '') FROM reports WHERE id = ?`, reportID).Scan(&sourceHash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("report %s: %w", reportID, models.ErrNotFound)
			}
			return fmt.Errorf("failed to read report %s: %w", reportID, err)
		}
	}

	res, err := r.conn.ExecContext(ctx, `
		UPDATE reports SET md_file = ?, md_file_hash = ?, md_source_hash = ?
		WHERE id = ?`, text, models.ContentHash([]byte(text)), sourceHash, reportID)
	if err != nil {
		return fmt.Errorf("failed to update md_file: %w", err)
	}
	return checkAffected(res, "report", reportID)
}

func (r *reportRepository) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Report, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, name, md_file, md_file_hash
		FROM reports
		WHERE md_file IS NOT NULL AND md_file <> ''
		  AND (embedding_source_hash IS NULL OR embedding_source_hash <> md_file_hash)
		ORDER BY id
		LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query report embedding candidates: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var (
			id     int64
			hash   string
			report models.Report
		)
		if err := rows.Scan(&id, &report.Name, &report.MdFile, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan report embedding candidate: %w", err)
		}
		report.ID = strconv.FormatInt(id, 10)
		r.embeddingSources.Remember(report.ID, hash)
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (r *reportRepository) UpdateEmbedding(ctx context.Context, reportID string, embedding models.Embedding) error {
	var res sql.Result
	var err error
	if hash, ok := r.embeddingSources.Lookup(reportID); ok {
		res, err = r.conn.ExecContext(ctx, `UPDATE reports SET embedding = ?, embedding_source_hash = ? WHERE id = ?`,
			serializeVector(embedding), hash, reportID)
	} else {
		res, err = r.conn.ExecContext(ctx, `UPDATE reports SET embedding = ?, embedding_source_hash = md_file_hash WHERE id = ?`,
			serializeVector(embedding), reportID)
	}
	if err != nil {
		return fmt.Errorf("failed to update report embedding: %w", err)
	}
	return checkAffected(res, "report", reportID)
}

func checkAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}
