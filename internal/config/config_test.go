package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryreg/engine/internal/config"
	"github.com/queryreg/engine/internal/dialect"
)

func TestLoad_DefaultsWhenNoFileOrEnv(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, dialect.Postgres, cfg.DatabaseDialect)
	assert.Equal(t, 50, cfg.RESTDefaultPageSize)
	assert.Equal(t, 500, cfg.RESTMaxPageSize)
	assert.Equal(t, 30*time.Second, cfg.JDBCQueryTimeout)
	assert.True(t, cfg.MetadataCachePrewarm)
}

func TestLoad_MissingYAMLFileIsNotAnError(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default().HTTPAddr, cfg.HTTPAddr)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("httpAddr: \":9090\"\ndatabaseDialect: MYSQL\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, dialect.MySQL, cfg.DatabaseDialect)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("httpAddr: \":9090\"\n"), 0o644))

	t.Setenv("QRE_HTTP_ADDR", ":7070")
	t.Setenv("QRE_REST_MAX_PAGE_SIZE", "1000")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 1000, cfg.RESTMaxPageSize)
}

func TestLoad_InvalidEnvIntIsIgnored(t *testing.T) {
	t.Setenv("QRE_REST_MAX_PAGE_SIZE", "not-a-number")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.RESTMaxPageSize)
}
