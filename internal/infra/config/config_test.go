package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 0.9, cfg.Irrigation.Kc)
	require.Equal(t, 100.0, cfg.Irrigation.AreaM2)
	require.Equal(t, 10.0, cfg.Irrigation.FlowRateLPM)
	require.Equal(t, 10*time.Second, cfg.Weather.Timeout)
	require.Equal(t, "auto", cfg.Weather.Timezone)
	require.Equal(t, 3, cfg.Weather.Days)
}

func TestValidateRejectsBadIrrigationParams(t *testing.T) {
	cases := map[string]func(*Config){
		"zero kc":        func(c *Config) { c.Irrigation.Kc = 0 },
		"negative area":  func(c *Config) { c.Irrigation.AreaM2 = -5 },
		"zero flow rate": func(c *Config) { c.Irrigation.FlowRateLPM = 0 },
		"unknown source": func(c *Config) { c.Weather.Provider = "accuweather" },
		"bad latitude":   func(c *Config) { c.Weather.Latitude = 91 },
		"too many days":  func(c *Config) { c.Weather.Days = 17 },
		"redis no addr":  func(c *Config) { c.Sessions.Redis.Enabled = true },
		"metrics path":   func(c *Config) { c.Metrics.Path = "metrics" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
weather:
  provider: static
  latitude: 12.97
  longitude: 77.59
irrigation:
  kc: 1.1
  areaM2: 250
sessions:
  ttl: 30m
`), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("IRRIGATION_FLOW_RATE_LPM", "25")
	t.Setenv("LLM_MODEL", "llama3")
	t.Setenv("SESSIONS_REDIS_ENABLED", "true")
	t.Setenv("SESSIONS_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderStatic, cfg.Weather.Provider)
	require.Equal(t, 12.97, cfg.Weather.Latitude)
	require.Equal(t, 1.1, cfg.Irrigation.Kc)
	require.Equal(t, 250.0, cfg.Irrigation.AreaM2)
	require.Equal(t, 25.0, cfg.Irrigation.FlowRateLPM)
	require.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	require.Equal(t, "llama3", cfg.LLM.Model)
	require.True(t, cfg.Sessions.Redis.Enabled)
}

func TestLoadRejectsInvalidParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("irrigation:\n  flowRateLpm: 0\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidConfig))
}
