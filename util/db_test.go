package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDatabaseMemory(t *testing.T) {
	db, err := SetupDatabase("sqlite://:memory:", 40)
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestSetupDatabaseFile(t *testing.T) {
	// the parent directory is created on demand
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := SetupDatabase("sqlite://"+path, 40)
	require.NoError(t, err)

	require.NoError(t, db.Exec("CREATE TABLE smoke_rows (id INTEGER PRIMARY KEY)").Error)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSetupDatabaseBadScheme(t *testing.T) {
	_, err := SetupDatabase("mysql://root@localhost/nope", 40)
	assert.Error(t, err)
}
