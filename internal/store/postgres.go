package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/brandpulse/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	if connString == "" {
		return nil, eris.New("postgres: database_url is required")
	}
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns <= 0 {
		maxConns = 5
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS audits (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_id    TEXT NOT NULL,
	overall_score INTEGER NOT NULL,
	result        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audits_subject_created ON audits(subject_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveAudit(ctx context.Context, subjectID string, result *model.AuditResult) (*model.AuditRecord, error) {
	rec, data, err := newRecord(uuid.New().String(), subjectID, result)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audits (id, subject_id, overall_score, result, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, subjectID, result.OverallScore, data, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert audit for %s", subjectID)
	}
	return rec, nil
}

func (s *PostgresStore) LatestAudit(ctx context.Context, subjectID string) (*model.AuditRecord, error) {
	var (
		rec  model.AuditRecord
		data []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, subject_id, result, created_at FROM audits WHERE subject_id = $1 ORDER BY created_at DESC LIMIT 1`,
		subjectID,
	).Scan(&rec.ID, &rec.SubjectID, &data, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest audit for %s", subjectID)
	}
	if rec.Result, err = decodeResult(data); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) ListAudits(ctx context.Context, subjectID string, limit int) ([]model.AuditRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, result, created_at FROM audits WHERE subject_id = $1 ORDER BY created_at DESC LIMIT $2`,
		subjectID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audits for %s", subjectID)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			rec  model.AuditRecord
			data []byte
		)
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &data, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		if rec.Result, err = decodeResult(data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate audits")
}
