package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exp_config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"name": "exp1",
		"host": "0.0.0.0",
		"port": 5010,
		"reset_db": true,
		"modules": ["news", "voting"]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "exp1", cfg.Name)
	assert.True(t, cfg.ResetDB)
	assert.True(t, cfg.HasModule(ModuleNews))
	assert.True(t, cfg.HasModule(ModuleVoting))
	assert.False(t, cfg.HasModule("badge"))
	assert.Equal(t, "0.0.0.0:5010", cfg.BindAddr())
	assert.Equal(t, "sqlite://"+filepath.Join("experiments", "exp1.db"), cfg.DatabaseURL())
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `{"name": "envexp"}`)
	t.Setenv(ConfigPathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "envexp", cfg.Name)
	assert.Equal(t, ":5010", cfg.BindAddr())
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, `{}`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"name": "x", "modules": ["carrier-pigeon"]}`))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDatabaseURLOverride(t *testing.T) {
	cfg := &Config{Name: "x", DatabaseURI: "postgres://y:y@localhost/ydb"}
	assert.Equal(t, "postgres://y:y@localhost/ydb", cfg.DatabaseURL())
}
