package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

const listVulnerabilityCandidatesSQL = `
	SELECT id, COALESCE(title, ''), description
	FROM vulnerabilities
	WHERE description IS NOT NULL
	  AND embedding_source_hash IS DISTINCT FROM encode(sha256(convert_to(description, 'UTF8')), 'hex')
	ORDER BY id
	LIMIT $1`

const updateVulnerabilityEmbeddingSQL = `
	UPDATE vulnerabilities
	SET embedding = $2,
	    embedding_source_hash = COALESCE($3::text, encode(sha256(convert_to(description, 'UTF8')), 'hex'))
	WHERE id = $1`

type vulnerabilityRepository struct {
	conn    conn
	sources *store.SourceHashes
}

func (r *vulnerabilityRepository) ListEmbeddingCandidates(ctx context.Context, limit int) ([]models.Vulnerability, error) {
	rows, err := r.conn.Query(ctx, listVulnerabilityCandidatesSQL, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query vulnerability embedding candidates: %w", err)
	}
	defer rows.Close()

	var vulns []models.Vulnerability
	for rows.Next() {
		var (
			id   int64
			vuln models.Vulnerability
		)
		if err := rows.Scan(&id, &vuln.Title, &vuln.Description); err != nil {
			return nil, fmt.Errorf("scan vulnerability embedding candidate: %w", err)
		}
		vuln.ID = strconv.FormatInt(id, 10)
		r.sources.Remember(vuln.ID, models.ContentHash([]byte(vuln.Description)))
		vulns = append(vulns, vuln)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vulnerability embedding candidates: %w", err)
	}
	return vulns, nil
}

func (r *vulnerabilityRepository) UpdateEmbedding(ctx context.Context, vulnerabilityID string, embedding models.Embedding) error {
	id, err := parseID("vulnerability", vulnerabilityID)
	if err != nil {
		return err
	}
	vec := pgvector.NewVector(embedding.Slice())
	tag, err := r.conn.Exec(ctx, updateVulnerabilityEmbeddingSQL, id, vec, optionalHash(r.sources, vulnerabilityID))
	if err != nil {
		return fmt.Errorf("update vulnerability embedding: %w", err)
	}
	return checkAffected(tag, "vulnerability", vulnerabilityID)
}
