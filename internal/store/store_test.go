package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SQLite(t *testing.T) {
	s, err := New(context.Background(), Config{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)

	rec, err := s.LatestAudit(context.Background(), "brand-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestNew_PostgresRequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url is required")
}

func TestListLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, listLimit(0))
	assert.Equal(t, defaultListLimit, listLimit(-3))
	assert.Equal(t, 7, listLimit(7))
}
