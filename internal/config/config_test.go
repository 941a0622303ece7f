package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv neutralizes variables that may leak in from the host.
func clearEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	for _, key := range []string{
		"SERVER_PORT", "PORT", "STORE_DRIVER", "DATA_API_BASE_URL", "DATA_API_PUBLIC_KEY",
		"DATA_API_PRIVATE_KEY", "DATABASE_URL", "JWT_SECRET", "TELLER_TIMEOUT",
		"AGGREGATOR_CONCURRENCY", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func setDataAPIEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_API_BASE_URL", "https://data.example.com/endpoint")
	t.Setenv("DATA_API_PUBLIC_KEY", "pub")
	t.Setenv("DATA_API_PRIVATE_KEY", "priv")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	setDataAPIEnv(t)
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StoreDriverDataAPI, cfg.StoreDriver)
	assert.Equal(t, "https://api.teller.io", cfg.TellerAPIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.TellerTimeout)
	assert.Equal(t, 4, cfg.AggregatorConcurrency)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 10, cfg.LoginRateLimitPerMinute)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	setDataAPIEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("TELLER_TIMEOUT", "3s")
	t.Setenv("AGGREGATOR_CONCURRENCY", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 3*time.Second, cfg.TellerTimeout)
	assert.Equal(t, 1, cfg.AggregatorConcurrency)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := "JWT_SECRET=from-file\nSTORE_DRIVER=postgres\nDATABASE_URL=postgres://localhost/budgetlink\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://localhost/budgetlink", cfg.DatabaseURL)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{},
			wantErr: "JWT_SECRET is required",
		},
		{
			name:    "missing data api settings",
			env:     map[string]string{"JWT_SECRET": "s", "DATA_API_PUBLIC_KEY": "pub"},
			wantErr: "missing data API settings: DATA_API_BASE_URL, DATA_API_PRIVATE_KEY",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "postgres"},
			wantErr: "DATABASE_URL is required when STORE_DRIVER=postgres",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "mongo"},
			wantErr: `unsupported STORE_DRIVER "mongo"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(t.TempDir())
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
