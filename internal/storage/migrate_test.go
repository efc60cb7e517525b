package storage

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	fsys, err := Migrations("")
	require.NoError(t, err)

	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, files)
}

func TestMigrationFilesSortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"010_reports.sql": {Data: []byte("SELECT 1;")},
		"002_indexes.sql": {Data: []byte("SELECT 1;")},
		"README.md":       {Data: []byte("notes")},
		"archive/old.sql": {Data: []byte("SELECT 1;")},
		"001_init.sql":    {Data: []byte("SELECT 1;")},
	}

	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_indexes.sql", "010_reports.sql"}, files)
}
