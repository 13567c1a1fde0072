package irrigation

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
	"github.com/yanqian/irrigation-assistant/pkg/metrics"
)

const (
	defaultDays     = 3
	defaultTimezone = "auto"
	maxDays         = 16
)

// Service exposes forecast based irrigation planning.
type Service interface {
	Recommend(ctx context.Context, req Request) (Response, error)
	Forecast(ctx context.Context, req ForecastRequest) (ForecastSeries, error)
}

// ForecastProvider supplies daily weather for a location and horizon.
type ForecastProvider interface {
	Fetch(ctx context.Context, lat, lon float64, days int, timezone string) (ForecastSeries, error)
}

type service struct {
	cfg      Config
	provider ForecastProvider
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewService wires up the irrigation domain.
func NewService(cfg Config, provider ForecastProvider, collector *metrics.Collector, logger *slog.Logger) Service {
	return &service{
		cfg:      cfg,
		provider: provider,
		metrics:  collector,
		logger:   logger.With("component", "irrigation.service"),
	}
}

func (s *service) Recommend(ctx context.Context, req Request) (Response, error) {
	params := s.resolveParams(req)
	if err := params.Validate(); err != nil {
		return Response{}, err
	}

	series, err := s.Forecast(ctx, ForecastRequest{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Days:      req.Days,
		Timezone:  req.Timezone,
	})
	if err != nil {
		return Response{}, err
	}

	decision, err := Decide(series, params)
	if err != nil {
		return Response{}, err
	}
	s.metrics.RecordDecision(decision.Irrigate)

	tier := ClassifySufficiency(decision.ET0, decision.Rain)
	s.logger.Info("irrigation decision computed",
		"date", series[0].Date,
		"irrigate", decision.Irrigate,
		"need_mm", decision.NeedMM,
		"minutes", decision.Minutes,
		"sufficiency", tier,
	)

	return Response{
		Decision:    decision,
		Sufficiency: tier,
		Advice:      tier.Advice(),
		Params:      params,
		Forecast:    series,
	}, nil
}

func (s *service) Forecast(ctx context.Context, req ForecastRequest) (ForecastSeries, error) {
	loc, err := s.resolveLocation(req)
	if err != nil {
		return nil, err
	}

	series, err := s.provider.Fetch(ctx, loc.Latitude, loc.Longitude, loc.Days, loc.Timezone)
	if err != nil {
		s.logger.Warn("weather provider fetch failed", "lat", loc.Latitude, "lon", loc.Longitude, "error", err)
		return nil, apperrors.Wrap(apperrors.CodeProviderUnavailable, "weather provider unavailable", err)
	}
	if len(series) == 0 {
		return nil, apperrors.Wrap(apperrors.CodeProviderUnavailable, "weather provider returned no forecast days", nil)
	}
	s.logger.Debug("forecast fetched", "days", len(series), "requested", loc.Days)
	return series, nil
}

func (s *service) resolveParams(req Request) Params {
	params := s.cfg.Params
	if params == (Params{}) {
		params = DefaultParams()
	}
	if req.Kc != 0 {
		params.Kc = req.Kc
	}
	if req.AreaM2 != 0 {
		params.AreaM2 = req.AreaM2
	}
	if req.FlowRateLPM != 0 {
		params.FlowRateLPM = req.FlowRateLPM
	}
	return params
}

func (s *service) resolveLocation(req ForecastRequest) (Location, error) {
	loc := Location{
		Latitude:  s.cfg.Latitude,
		Longitude: s.cfg.Longitude,
		Days:      firstPositive(req.Days, s.cfg.Days, defaultDays),
		Timezone:  firstNonEmpty(req.Timezone, s.cfg.Timezone, defaultTimezone),
	}
	if req.Latitude != nil {
		loc.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		loc.Longitude = *req.Longitude
	}

	switch {
	case loc.Latitude < -90 || loc.Latitude > 90:
		return Location{}, apperrors.Wrap(apperrors.CodeInvalidInput, "latitude must be within [-90, 90]", nil)
	case loc.Longitude < -180 || loc.Longitude > 180:
		return Location{}, apperrors.Wrap(apperrors.CodeInvalidInput, "longitude must be within [-180, 180]", nil)
	case loc.Days > maxDays:
		return Location{}, apperrors.Wrap(apperrors.CodeInvalidInput, "days must not exceed 16", nil)
	}
	return loc, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
