package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
)

// InsertReport stores a new report and returns its id. bin may be nil.
func (db *DB) InsertReport(ctx context.Context, name string, bin []byte) (string, error) {
	var hash any
	if bin != nil {
		hash = models.ContentHash(bin)
	}
	res, err := db.conn.ExecContext(ctx, `INSERT INTO reports (name, bin_file, bin_file_hash) VALUES (?, ?, ?)`, name, bin, hash)
	if err != nil {
		return "", fmt.Errorf("failed to insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to get report id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// ReplaceReportFile swaps the uploaded document of a report, which makes its
// derived text stale.
func (db *DB) ReplaceReportFile(ctx context.Context, reportID string, bin []byte) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE reports SET bin_file = ?, bin_file_hash = ? WHERE id = ?`, bin, models.ContentHash(bin), reportID)
	if err != nil {
		return fmt.Errorf("failed to replace report file: %w", err)
	}
	return checkAffected(res, "report", reportID)
}

// InsertVulnerability stores a new vulnerability and returns its id.
func (db *DB) InsertVulnerability(ctx context.Context, title, description string) (string, error) {
	res, err := db.conn.ExecContext(ctx, `INSERT INTO vulnerabilities (title, description, description_hash) VALUES (?, ?, ?)`,
		title, description, models.ContentHash([]byte(description)))
	if err != nil {
		return "", fmt.Errorf("failed to insert vulnerability: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to get vulnerability id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// UpdateVulnerabilityDescription edits a description, which makes its
// embedding stale.
func (db *DB) UpdateVulnerabilityDescription(ctx context.Context, vulnerabilityID, description string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE vulnerabilities SET description = ?, description_hash = ? WHERE id = ?`,
		description, models.ContentHash([]byte(description)), vulnerabilityID)
	if err != nil {
		return fmt.Errorf("failed to update vulnerability: %w", err)
	}
	return checkAffected(res, "vulnerability", vulnerabilityID)
}

// GetReport reads a report with its derived fields.
func (db *DB) GetReport(ctx context.Context, reportID string) (models.Report, error) {
	var (
		report    models.Report
		md        sql.NullString
		embedding []byte
	)
	err := db.conn.QueryRowContext(ctx, `SELECT id, name, bin_file, md_file, embedding FROM reports WHERE id = ?`, reportID).
		Scan(&report.ID, &report.Name, &report.BinFile, &md, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, fmt.Errorf("report %s: %w", reportID, models.ErrNotFound)
	}
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to read report: %w", err)
	}
	report.MdFile = md.String
	if len(embedding) > 0 {
		report.Embedding = deserializeVector(embedding)
	}
	return report, nil
}

// GetVulnerability reads a vulnerability with its embedding.
func (db *DB) GetVulnerability(ctx context.Context, vulnerabilityID string) (models.Vulnerability, error) {
	var (
		vuln      models.Vulnerability
		embedding []byte
	)
	err := db.conn.QueryRowContext(ctx, `SELECT id, title, description, embedding FROM vulnerabilities WHERE id = ?`, vulnerabilityID).
		Scan(&vuln.ID, &vuln.Title, &vuln.Description, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vulnerability{}, fmt.Errorf("vulnerability %s: %w", vulnerabilityID, models.ErrNotFound)
	}
	if err != nil {
		return models.Vulnerability{}, fmt.Errorf("failed to read vulnerability: %w", err)
	}
	if len(embedding) > 0 {
		vuln.Embedding = deserializeVector(embedding)
	}
	return vuln, nil
}
