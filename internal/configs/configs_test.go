package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{}, cfg.AllowedOrigins)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, devDatabaseDSN, cfg.DatabaseDSN)
	assert.Equal(t, 4, cfg.PowDifficulty)
	assert.Equal(t, 5*time.Minute, cfg.PresenceAwayTimeout)
	assert.Equal(t, 24*time.Hour, cfg.UserTokenTTL)
	assert.Equal(t, 2*time.Hour, cfg.GuestTokenTTL)
	assert.Equal(t, 10000, cfg.MaxWSConnections)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
}

func TestProductionRequiresSecrets(t *testing.T) {
	_, err := Load(env(map[string]string{"ENVIRONMENT": "production"}))
	assert.ErrorContains(t, err, "JWT_SECRET")

	_, err = Load(env(map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "s"}))
	assert.ErrorContains(t, err, "DATABASE_URL")

	cfg, err := Load(env(map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "s", "STORAGE_DRIVER": "memory"}))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseDSN)
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port not a number", map[string]string{"PORT": "http"}, "PORT"},
		{"privileged port", map[string]string{"PORT": "80"}, "port number 80"},
		{"bad duration", map[string]string{"PRESENCE_AWAY_TIMEOUT": "soon"}, "PRESENCE_AWAY_TIMEOUT"},
		{"negative duration", map[string]string{"GUEST_TOKEN_TTL": "-1h"}, "GUEST_TOKEN_TTL"},
		{"difficulty out of range", map[string]string{"POW_DIFFICULTY": "12"}, "POW_DIFFICULTY"},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "mongo"}, "STORAGE_DRIVER"},
		{"zero connections", map[string]string{"MAX_WS_CONNECTIONS": "0"}, "MAX_WS_CONNECTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(env(tt.env))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestOrigins(t *testing.T) {
	cfg, err := Load(env(map[string]string{"ALLOWED_ORIGINS": " https://a.example , ,https://b.example"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
storage_driver: memory
allowed_origins:
  - https://a.example
  - https://b.example
presence_away_timeout: 90s
`), 0o600))

	file, err := ReadFile(path)
	require.NoError(t, err)

	cfg, err := Load(Chain(env(map[string]string{"PORT": "9100"}), file))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "environment wins over the file")
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.PresenceAwayTimeout)
}

func TestReadFileErrors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1, 2"), 0o600))
	_, err = ReadFile(path)
	assert.Error(t, err)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "8181")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
}
