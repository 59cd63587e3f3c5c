package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "steps", "trace_entries"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "closing twice must not fail")

	var empty Store
	assert.NoError(t, empty.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	for _, p := range pragmas {
		t.Run(p.name, func(t *testing.T) {
			got, err := readPragma(t.Context(), s.db, p.name)
			require.NoError(t, err)
			assert.Equal(t, p.want, got)
		})
	}
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, 2, schemaVersion)
	assert.Equal(t, schemaVersion, userVersion(t, s.db))
}

// v0Schema is the run log before the trigger index and the embedded rule
// tree source.
const v0Schema = `
CREATE TABLE runs (
    id             TEXT PRIMARY KEY,
    game_id        TEXT NOT NULL,
    rules_digest   TEXT NOT NULL,
    players        INTEGER NOT NULL CHECK (players > 0),
    seed           TEXT NOT NULL,
    engine_version TEXT NOT NULL,
    state_version  TEXT NOT NULL,
    initial_state  BLOB NOT NULL,
    initial_digest TEXT NOT NULL
);
INSERT INTO runs VALUES ('old', 'tally', 'd', 2, '7', 'v', 'v', x'7b7d', 'd');
`

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(v0Schema)
	require.NoError(t, err)
	db.Close()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, schemaVersion, userVersion(t, s.db))

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_trace_trigger'",
	).Scan(&name)
	assert.NoError(t, err, "migration must create the trigger index")

	var rulesName string
	var rulesSource []byte
	require.NoError(t, s.db.QueryRow(
		"SELECT rules_name, rules_source FROM runs WHERE id = 'old'",
	).Scan(&rulesName, &rulesSource))
	assert.Empty(t, rulesName)
	assert.Nil(t, rulesSource)
}

func TestMigration_ReopenIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	createTestRun(t, s, "r1")
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.ReadRun(t.Context(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "tally.yaml", run.RulesName)
	assert.Equal(t, schemaVersion, userVersion(t, s.db))
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	return version
}
