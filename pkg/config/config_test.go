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
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Search.MaxRadiusKm)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, 25.0, cfg.Search.CompactMaxRadiusKm)
	assert.Equal(t, 20, cfg.Search.CompactMaxResults)
	assert.Equal(t, 250*time.Millisecond, cfg.Search.SuggestDebounce)
	assert.Equal(t, 10*time.Second, cfg.Search.RequestTimeout)
	assert.Equal(t, 30.0, cfg.Search.FallbackSpeedKmh)
	assert.Equal(t, `^\d{5}-?\d{3}$`, cfg.Search.PostalCodePattern)
	assert.Equal(t, "none", cfg.Directions.Provider)
	assert.Equal(t, "mock", cfg.Geocoding.Provider)
	assert.Equal(t, "redis", cfg.Cache.Backend)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SEARCH_FALLBACK_SPEED_KMH=42.5\nROUTING_PROVIDER=osrm\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Cleanup(func() {
		os.Unsetenv("SEARCH_FALLBACK_SPEED_KMH")
		os.Unsetenv("ROUTING_PROVIDER")
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 42.5, cfg.Search.FallbackSpeedKmh)
	assert.Equal(t, "osrm", cfg.Routing.Provider)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SEARCH_REQUEST_TIMEOUT", "7s")
	t.Setenv("DIRECTIONS_PROVIDER", "ors")
	t.Setenv("DIRECTIONS_API_KEY", "ors-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Search.RequestTimeout)
	assert.Equal(t, "ors", cfg.Directions.Provider)
	assert.Equal(t, "ors-key", cfg.Directions.APIKey)
}

func TestValidate(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "timeout too long",
			env:     map[string]string{"SEARCH_REQUEST_TIMEOUT": "30s"},
			wantErr: "SEARCH_REQUEST_TIMEOUT",
		},
		{
			name:    "debounce too short",
			env:     map[string]string{"SEARCH_SUGGEST_DEBOUNCE": "20ms"},
			wantErr: "SEARCH_SUGGEST_DEBOUNCE",
		},
		{
			name:    "bad postal pattern",
			env:     map[string]string{"SEARCH_POSTAL_CODE_PATTERN": "(["},
			wantErr: "SEARCH_POSTAL_CODE_PATTERN",
		},
		{
			name:    "directions without key",
			env:     map[string]string{"DIRECTIONS_PROVIDER": "google"},
			wantErr: "DIRECTIONS_API_KEY",
		},
		{
			name:    "unknown cache backend",
			env:     map[string]string{"CACHE_BACKEND": "memcached"},
			wantErr: "CACHE_BACKEND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
