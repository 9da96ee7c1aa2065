package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

type vulnerabilityRepository struct {
	conn    querier
	sources *store.SourceHashes
}

func (r *vulnerabilityRepository) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Vulnerability, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, title, description, description_hash
		FROM vulnerabilities
		WHERE embedding_source_hash IS NULL OR embedding_source_hash <> description_hash
		ORDER BY id
		LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query vulnerability embedding candidates: %w", err)
	}
	defer rows.Close()

	var vulns []models.Vulnerability
	for rows.Next() {
		var (
			id   int64
			hash string
			vuln models.Vulnerability
		)
		if err := rows.Scan(&id, &vuln.Title, &vuln.Description, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan vulnerability embedding candidate: %w", err)
		}
		vuln.ID = strconv.FormatInt(id, 10)
		r.sources.Remember(vuln.ID, hash)
		vulns = append(vulns, vuln)
	}
	return vulns, rows.Err()
}

func (r *vulnerabilityRepository) UpdateEmbedding(ctx context.Context, vulnerabilityID string, embedding models.Embedding) error {
	var res sql.Result
	var err error
	if hash, ok := r.sources.Lookup(vulnerabilityID); ok {
		res, err = r.conn.ExecContext(ctx, `UPDATE vulnerabilities SET embedding = ?, embedding_source_hash = ? WHERE id = ?`,
			serializeVector(embedding), hash, vulnerabilityID)
	} else {
		res, err = r.conn.ExecContext(ctx, `UPDATE vulnerabilities SET embedding = ?, embedding_source_hash = description_hash WHERE id = ?`,
			serializeVector(embedding), vulnerabilityID)
	}
	if err != nil {
		return fmt.Errorf("failed to update vulnerability embedding: %w", err)
	}
	return checkAffected(res, "vulnerability", vulnerabilityID)
}
