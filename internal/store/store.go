// Package store persists final audit results so they can be listed and
// exported after the stream that produced them is gone.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/brandpulse/internal/model"
)

const defaultListLimit = 20

// Store defines audit history persistence.
type Store interface {
	// SaveAudit stores result for subjectID and returns the new record.
	SaveAudit(ctx context.Context, subjectID string, result *model.AuditResult) (*model.AuditRecord, error)
	// LatestAudit returns the newest record for subjectID, or nil, nil.
	LatestAudit(ctx context.Context, subjectID string) (*model.AuditRecord, error)
	// ListAudits returns up to limit records for subjectID, newest first.
	ListAudits(ctx context.Context, subjectID string, limit int) ([]model.AuditRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store implementation.
type Config struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// New opens the store selected by cfg.Driver ("sqlite" or "postgres") and
// runs its migration.
func New(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "brandpulse.db"
		}
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func newRecord(id, subjectID string, result *model.AuditResult) (*model.AuditRecord, []byte, error) {
	if result == nil {
		return nil, nil, eris.New("store: nil audit result")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal audit result")
	}
	return &model.AuditRecord{
		ID:        id,
		SubjectID: subjectID,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}, data, nil
}

func decodeResult(data []byte) (*model.AuditResult, error) {
	var r model.AuditResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal audit result")
	}
	return &r, nil
}
