package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
	"github.com/yanqian/irrigation-assistant/internal/infra/config"
	"github.com/yanqian/irrigation-assistant/internal/infra/llm"
	"github.com/yanqian/irrigation-assistant/internal/infra/llm/chatgpt"
	"github.com/yanqian/irrigation-assistant/internal/infra/sessionstore"
	"github.com/yanqian/irrigation-assistant/internal/infra/tokenizer"
	"github.com/yanqian/irrigation-assistant/internal/infra/weather"
	"github.com/yanqian/irrigation-assistant/internal/infra/weather/openmeteo"
	"github.com/yanqian/irrigation-assistant/internal/infra/weather/static"
	"github.com/yanqian/irrigation-assistant/pkg/metrics"
)

func provideMetrics(cfg *config.Config) *metrics.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewCollector("irrigation")
}

func provideIrrigationConfig(cfg *config.Config) irrigation.Config {
	return irrigation.Config{
		Params: irrigation.Params{
			Kc:          cfg.Irrigation.Kc,
			AreaM2:      cfg.Irrigation.AreaM2,
			FlowRateLPM: cfg.Irrigation.FlowRateLPM,
		},
		Latitude:  cfg.Weather.Latitude,
		Longitude: cfg.Weather.Longitude,
		Days:      cfg.Weather.Days,
		Timezone:  cfg.Weather.Timezone,
	}
}

func provideForecastProvider(cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) irrigation.ForecastProvider {
	var source irrigation.ForecastProvider
	switch cfg.Weather.Provider {
	case config.ProviderStatic:
		logger.Info("using static demo forecast")
		source = static.NewProvider()
	default:
		source = openmeteo.NewClient(cfg.Weather.BaseURL, cfg.Weather.Timeout)
	}
	return weather.NewInstrumented(source, collector)
}

func provideAssistantConfig(cfg *config.Config) assistant.Config {
	return assistant.Config{
		SystemPrompt:     cfg.LLM.SystemPrompt,
		MaxHistoryTokens: cfg.LLM.MaxHistoryTokens,
	}
}

// provideForecastFunc gives chat rules the configured default location.
func provideForecastFunc(svc irrigation.Service) assistant.ForecastFunc {
	return func(ctx context.Context) (irrigation.ForecastSeries, error) {
		return svc.Forecast(ctx, irrigation.ForecastRequest{})
	}
}

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout)
}

func provideGenerator(cfg *config.Config, client *chatgpt.Client, logger *slog.Logger) assistant.Generator {
	if cfg.LLM.Disabled {
		logger.Info("language model disabled, unmatched questions will report an error")
		return llm.DisabledGenerator{}
	}
	return llm.NewChatGPTGenerator(client, cfg.LLM.Model, cfg.LLM.Temperature, logger)
}

func provideTokenCounter(cfg *config.Config, logger *slog.Logger) assistant.TokenCounter {
	return tokenizer.NewCounter(cfg.LLM.Model, logger)
}

func provideResponder(cfg assistant.Config, forecast assistant.ForecastFunc, generator assistant.Generator, counter assistant.TokenCounter) assistant.Responder {
	return assistant.NewDefaultChain(cfg, assistant.NewRuleSet(), forecast, generator, counter)
}

// provideSessionStore prefers Postgres, then Valkey, and falls back to memory
// whenever a backend is missing or unreachable.
func provideSessionStore(cfg *config.Config, logger *slog.Logger) (assistant.SessionStore, func()) {
	fallback := func() (assistant.SessionStore, func()) {
		return sessionstore.NewMemoryStore(cfg.Sessions.TTL), func() {}
	}

	if dsn := strings.TrimSpace(cfg.Sessions.Postgres.DSN); dsn != "" {
		if store, cleanup, ok := openPostgresStore(cfg, dsn, logger); ok {
			return store, cleanup
		}
	}
	if cfg.Sessions.Redis.Enabled {
		if store, cleanup, ok := openValkeyStore(cfg, logger); ok {
			return store, cleanup
		}
	}
	logger.Info("using in-memory session store")
	return fallback()
}

func openPostgresStore(cfg *config.Config, dsn string, logger *slog.Logger) (assistant.SessionStore, func(), bool) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, skipping postgres session store", "error", err)
		return nil, nil, false
	}
	if cfg.Sessions.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Sessions.Postgres.MaxConns
	}
	if cfg.Sessions.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Sessions.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, skipping postgres session store", "error", err)
		return nil, nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, skipping postgres session store", "error", err)
		pool.Close()
		return nil, nil, false
	}
	store := sessionstore.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare chat tables, skipping postgres session store", "error", err)
		pool.Close()
		return nil, nil, false
	}
	logger.Info("postgres session store enabled")
	return store, pool.Close, true
}

func openValkeyStore(cfg *config.Config, logger *slog.Logger) (assistant.SessionStore, func(), bool) {
	opt, err := buildValkeyOptions(cfg.Sessions.Redis.Addr)
	if err != nil {
		logger.Error("invalid valkey configuration, skipping valkey session store", "error", err)
		return nil, nil, false
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, skipping valkey session store", "error", err)
		return nil, nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, skipping valkey session store", "error", err)
		client.Close()
		return nil, nil, false
	}
	logger.Info("valkey session store enabled", "addr", cfg.Sessions.Redis.Addr)
	return sessionstore.NewValkeyStore(client, "chat", cfg.Sessions.TTL), client.Close, true
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}
