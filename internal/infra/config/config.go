package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	LLM        LLMConfig        `yaml:"llm"`
	Weather    WeatherConfig    `yaml:"weather"`
	Irrigation IrrigationConfig `yaml:"irrigation"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// LLMConfig points the fallback generator at an OpenAI compatible endpoint.
type LLMConfig struct {
	APIKey           string        `yaml:"apiKey"`
	BaseURL          string        `yaml:"baseUrl"`
	Model            string        `yaml:"model"`
	Temperature      float32       `yaml:"temperature"`
	Timeout          time.Duration `yaml:"timeout"`
	SystemPrompt     string        `yaml:"systemPrompt"`
	MaxHistoryTokens int           `yaml:"maxHistoryTokens"`
	Disabled         bool          `yaml:"disabled"`
}

// WeatherConfig selects the forecast source and the default location.
type WeatherConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"baseUrl"`
	Latitude  float64       `yaml:"latitude"`
	Longitude float64       `yaml:"longitude"`
	Days      int           `yaml:"days"`
	Timezone  string        `yaml:"timezone"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IrrigationConfig holds the field parameters used by the decision engine.
type IrrigationConfig struct {
	Kc          float64 `yaml:"kc"`
	AreaM2      float64 `yaml:"areaM2"`
	FlowRateLPM float64 `yaml:"flowRateLpm"`
}

// SessionsConfig chooses where chat logs live. Postgres wins over Redis, and
// memory is used when neither is configured.
type SessionsConfig struct {
	TTL      time.Duration  `yaml:"ttl"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig contains connection information for cache storage.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	ProviderOpenMeteo = "openmeteo"
	ProviderStatic    = "static"
)

// Load reads configuration from a .env file, a YAML file and environment
// variables, in that order of precedence from lowest to highest.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidConfig, "invalid config", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	setDuration(&cfg.HTTP.ReadTimeout, "HTTP_READ_TIMEOUT")
	setDuration(&cfg.HTTP.WriteTimeout, "HTTP_WRITE_TIMEOUT")
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")
	setBool(&cfg.HTTP.Retry.Enabled, "HTTP_RETRY_ENABLED")
	setInt(&cfg.HTTP.Retry.MaxAttempts, "HTTP_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.HTTP.Retry.BaseBackoff, "HTTP_RETRY_BASE_BACKOFF")

	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	setDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT")
	setString(&cfg.LLM.SystemPrompt, "LLM_SYSTEM_PROMPT")
	setInt(&cfg.LLM.MaxHistoryTokens, "LLM_MAX_HISTORY_TOKENS")
	setBool(&cfg.LLM.Disabled, "LLM_DISABLED")

	setString(&cfg.Weather.Provider, "WEATHER_PROVIDER")
	setString(&cfg.Weather.BaseURL, "WEATHER_BASE_URL")
	setFloat(&cfg.Weather.Latitude, "WEATHER_LATITUDE")
	setFloat(&cfg.Weather.Longitude, "WEATHER_LONGITUDE")
	setInt(&cfg.Weather.Days, "WEATHER_DAYS")
	setString(&cfg.Weather.Timezone, "WEATHER_TIMEZONE")
	setDuration(&cfg.Weather.Timeout, "WEATHER_TIMEOUT")

	setFloat(&cfg.Irrigation.Kc, "IRRIGATION_KC")
	setFloat(&cfg.Irrigation.AreaM2, "IRRIGATION_AREA_M2")
	setFloat(&cfg.Irrigation.FlowRateLPM, "IRRIGATION_FLOW_RATE_LPM")

	setDuration(&cfg.Sessions.TTL, "SESSIONS_TTL")
	setBool(&cfg.Sessions.Redis.Enabled, "SESSIONS_REDIS_ENABLED")
	setString(&cfg.Sessions.Redis.Addr, "SESSIONS_REDIS_ADDR")
	setString(&cfg.Sessions.Postgres.DSN, "SESSIONS_POSTGRES_DSN")
	if v := os.Getenv("SESSIONS_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("SESSIONS_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.Postgres.MinConns = int32(parsed)
		}
	}

	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	setString(&cfg.Metrics.Path, "METRICS_PATH")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:     ":8080",
			ReadTimeout: 5 * time.Second,
			// Streamed fallback replies can take a while.
			WriteTimeout: 2 * time.Minute,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				// Chat turns append to the session log and must not replay.
				Exclude: []string{
					"/api/v1/chat/sessions",
					"/api/v1/chat/sessions/:id/messages",
					"/api/v1/chat/sessions/:id/messages/stream",
				},
			},
		},
		LLM: LLMConfig{
			BaseURL:          "http://localhost:11434/v1",
			Model:            "mistral",
			Temperature:      0.2,
			Timeout:          2 * time.Minute,
			SystemPrompt:     "You are a farming assistant. Give short, practical advice about irrigation, weather and crop water needs.",
			MaxHistoryTokens: 2048,
		},
		Weather: WeatherConfig{
			Provider:  ProviderOpenMeteo,
			BaseURL:   "https://api.open-meteo.com/v1/forecast",
			Latitude:  28.61,
			Longitude: 77.21,
			Days:      3,
			Timezone:  "auto",
			Timeout:   10 * time.Second,
		},
		Irrigation: IrrigationConfig{
			Kc:          0.9,
			AreaM2:      100,
			FlowRateLPM: 10,
		},
		Sessions: SessionsConfig{
			TTL: 24 * time.Hour,
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if !c.LLM.Disabled && strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model cannot be empty")
	}
	if c.LLM.MaxHistoryTokens < 0 {
		return errors.New("llm.maxHistoryTokens cannot be negative")
	}
	switch c.Weather.Provider {
	case ProviderOpenMeteo, ProviderStatic:
	default:
		return fmt.Errorf("weather.provider must be %q or %q", ProviderOpenMeteo, ProviderStatic)
	}
	if c.Weather.Latitude < -90 || c.Weather.Latitude > 90 {
		return errors.New("weather.latitude must be within [-90, 90]")
	}
	if c.Weather.Longitude < -180 || c.Weather.Longitude > 180 {
		return errors.New("weather.longitude must be within [-180, 180]")
	}
	if c.Weather.Days <= 0 || c.Weather.Days > 16 {
		return errors.New("weather.days must be between 1 and 16")
	}
	if !positive(c.Irrigation.Kc) {
		return errors.New("irrigation.kc must be a positive number")
	}
	if !positive(c.Irrigation.AreaM2) {
		return errors.New("irrigation.areaM2 must be a positive number")
	}
	if !positive(c.Irrigation.FlowRateLPM) {
		return errors.New("irrigation.flowRateLpm must be a positive number")
	}
	if c.Sessions.TTL < 0 {
		return errors.New("sessions.ttl cannot be negative")
	}
	if c.Sessions.Redis.Enabled && strings.TrimSpace(c.Sessions.Redis.Addr) == "" {
		return errors.New("sessions.redis.addr cannot be empty when redis is enabled")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
