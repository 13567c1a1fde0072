//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/irrigation-assistant/internal/bootstrap"
	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
	"github.com/yanqian/irrigation-assistant/internal/infra/config"
	httpiface "github.com/yanqian/irrigation-assistant/internal/interface/http"
	"github.com/yanqian/irrigation-assistant/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		provideMetrics,
		provideIrrigationConfig,
		provideForecastProvider,
		irrigation.NewService,
		provideAssistantConfig,
		provideForecastFunc,
		provideChatGPTClient,
		provideGenerator,
		provideTokenCounter,
		provideResponder,
		provideSessionStore,
		assistant.NewService,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
