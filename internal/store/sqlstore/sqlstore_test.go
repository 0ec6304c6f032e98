package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/acoda/backend/internal/store"
	"github.com/zhouzirui/acoda/backend/internal/store/storetest"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "acoda-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newSQLiteStore(t)
	})
}

// Set ACODA_TEST_POSTGRES_DSN to run the shared checks against a real server.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("ACODA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ACODA_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), Postgres, dsn)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = s.db.Exec(`TRUNCATE users CASCADE`)
			s.Close()
		})
		return s
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	assert.NoError(t, s.RunMigrations())
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &Store{dialect: SQLite}
	assert.Equal(t, "SELECT * FROM t WHERE a = ?", lite.rebind("SELECT * FROM t WHERE a = ?"))
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("mysql"), "dsn")
	assert.Error(t, err)

	_, err = Open(context.Background(), SQLite, "")
	assert.Error(t, err)
}
