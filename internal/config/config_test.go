package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, ',', cfg.Import.Delimiter)
	assert.Equal(t, int64(32<<20), cfg.Import.MaxUploadBytes)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Error(t, cfg.RequireDatabase())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crudkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://file/db
http:
  port: 9000
import:
  delimiter: ";"
`), 0o600))

	t.Setenv("CRUDKIT_HTTP_PORT", "9100")
	t.Setenv("CRUDKIT_S3_ENDPOINT", "minio:9000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/db", cfg.Database.URL)
	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, ';', cfg.Import.Delimiter)
	assert.Equal(t, "minio:9000", cfg.S3.Endpoint)
	assert.NoError(t, cfg.RequireDatabase())
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CRUDKIT_IMPORT_DELIMITER", ";;")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
