package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/brandpulse/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS audits (
	id            TEXT PRIMARY KEY,
	subject_id    TEXT NOT NULL,
	overall_score INTEGER NOT NULL,
	result        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_audits_subject_created ON audits(subject_id, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAudit(ctx context.Context, subjectID string, result *model.AuditResult) (*model.AuditRecord, error) {
	rec, data, err := newRecord(uuid.New().String(), subjectID, result)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audits (id, subject_id, overall_score, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, subjectID, result.OverallScore, string(data), rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert audit for %s", subjectID)
	}
	return rec, nil
}

func (s *SQLiteStore) LatestAudit(ctx context.Context, subjectID string) (*model.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, result, created_at FROM audits WHERE subject_id = ? ORDER BY created_at DESC LIMIT 1`,
		subjectID,
	)
	rec, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest audit for %s", subjectID)
	}
	return rec, nil
}

func (s *SQLiteStore) ListAudits(ctx context.Context, subjectID string, limit int) ([]model.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, result, created_at FROM audits WHERE subject_id = ? ORDER BY created_at DESC LIMIT ?`,
		subjectID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audits for %s", subjectID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate audits")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAudit(row scannable) (*model.AuditRecord, error) {
	var (
		rec  model.AuditRecord
		data string
	)
	if err := row.Scan(&rec.ID, &rec.SubjectID, &data, &rec.CreatedAt); err != nil {
		return nil, err
	}
	result, err := decodeResult([]byte(data))
	if err != nil {
		return nil, err
	}
	rec.Result = result
	return &rec, nil
}
