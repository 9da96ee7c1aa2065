// Package postgres is the work-item store backed by the portal's PostgreSQL
// database. Embeddings are pgvector columns.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/sorobansecurityportal/reportpipeline/internal/models"
	"github.com/sorobansecurityportal/reportpipeline/internal/services"
	"github.com/sorobansecurityportal/reportpipeline/internal/store"
)

// conn is the subset of *pgxpool.Conn the repositories use.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store opens one pooled connection per cycle.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and registers the pgvector types on every new
// connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	slog.Info("Connected to database.")
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Begin acquires a connection that is held until the session is closed.
func (s *Store) Begin(ctx context.Context) (services.Session, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &session{
		conn:    c,
		reports: &reportRepository{conn: c, textSources: store.NewSourceHashes(), embeddingSources: store.NewSourceHashes()},
		vulns:   &vulnerabilityRepository{conn: c, sources: store.NewSourceHashes()},
	}, nil
}

type session struct {
	conn    *pgxpool.Conn
	reports *reportRepository
	vulns   *vulnerabilityRepository
}

func (s *session) Reports() services.ReportRepository                { return s.reports }
func (s *session) Vulnerabilities() services.VulnerabilityRepository { return s.vulns }

func (s *session) Close() error {
	s.conn.Release()
	return nil
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// optionalHash passes a remembered hash, or NULL so the statement derives the
// hash from the row itself.
func optionalHash(h *store.SourceHashes, id string) any {
	if hash, ok := h.Lookup(id); ok {
		return hash
	}
	return nil
}

func parseID(kind, id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q: %w", kind, id, models.ErrNotFound)
	}
	return n, nil
}

func checkAffected(tag pgconn.CommandTag, kind, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}
