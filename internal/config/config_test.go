package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xpert.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite3", cfg.Driver)
	assert.Equal(t, "xpert.db", cfg.DSN)
	assert.True(t, cfg.Audit)
	assert.False(t, cfg.QueryAudit)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
driver: sqlite3
dsn: data/app.db
entities: schema
audit: false
query_audit: true
log_level: debug
`)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data/app.db"), cfg.DSN)
	assert.Equal(t, filepath.Join(dir, "schema"), cfg.Entities)
	assert.False(t, cfg.Audit)
	assert.True(t, cfg.QueryAudit)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "query_audit: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Audit)
	assert.True(t, cfg.QueryAudit)
	assert.Equal(t, "sqlite3", cfg.Driver)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_PostgresDSNUntouched(t *testing.T) {
	dsn := "postgres://xpert@localhost:5432/xpert"
	cfg, err := Load(writeConfig(t, "driver: pgx\ndsn: "+dsn+"\n"))
	require.NoError(t, err)
	assert.Equal(t, dsn, cfg.DSN)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "dialect: sqlite\n", "field dialect not found"},
		{"bad driver", "driver: mysql\n", `unsupported "mysql"`},
		{"empty dsn", "dsn: \"\"\n", "dsn is required"},
		{"bad level", "log_level: loud\n", `unknown level "loud"`},
		{"bad yaml", "audit: [\n", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
