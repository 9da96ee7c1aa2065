// Package sqlite is an embedded work-item store for local runs and tests. It
// creates its own tables; hashes of every source column are kept next to it so
// staleness is a plain column comparison.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/sorobansecurityportal/reportpipeline/internal/services"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

// initialSchema contains the SQL for creating tables
const initialSchema = `-- Reports hold the uploaded document and what is derived from it
CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    bin_file BLOB,
    bin_file_hash TEXT,
    md_file TEXT,
    md_file_hash TEXT,
    md_source_hash TEXT,
    embedding BLOB,
    embedding_source_hash TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Vulnerabilities are findings extracted from reports
CREATE TABLE IF NOT EXISTS vulnerabilities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    description_hash TEXT NOT NULL,
    embedding BLOB,
    embedding_source_hash TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// Open creates the database file if needed and runs the schema.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// busy_timeout applies to every pooled connection, so seeding and a running
	// cycle can share the file.
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if _, err := db.conn.Exec(initialSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Begin pins one connection for the cycle.
func (db *DB) Begin(ctx context.Context) (services.Session, error) {
	c, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &session{
		conn:    c,
		reports: &reportRepository{conn: c, textSources: store.NewSourceHashes(), embeddingSources: store.NewSourceHashes()},
		vulns:   &vulnerabilityRepository{conn: c, sources: store.NewSourceHashes()},
	}, nil
}

type session struct {
	conn    *sql.Conn
	reports *reportRepository
	vulns   *vulnerabilityRepository
}

func (s *session) Reports() services.ReportRepository                { return s.reports }
func (s *session) Vulnerabilities() services.VulnerabilityRepository { return s.vulns }
func (s *session) Close() error                                      { return s.conn.Close() }

// querier is satisfied by *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// limitArg maps a non-positive limit to -1, which SQLite reads as no limit.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// serializeVector converts a float32 slice to bytes for storage
func serializeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts bytes back to a float32 slice
func deserializeVector(data []byte) []float32 {
	vector := make([]float32, len(data)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
