package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
)

const (
	defaultBaseURL = "https://api.open-meteo.com/v1/forecast"
	defaultTimeout = 10 * time.Second
	dailyFields    = "precipitation_sum,et0_fao_evapotranspiration,temperature_2m_max,temperature_2m_min"
)

// Client fetches daily forecasts from Open-Meteo.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds an API client. A non-positive timeout selects the 10s default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves the daily series for a location.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, days int, timezone string) (irrigation.ForecastSeries, error) {
	if days <= 0 {
		days = 3
	}
	if strings.TrimSpace(timezone) == "" {
		timezone = "auto"
	}

	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("daily", dailyFields)
	query.Set("timezone", timezone)
	query.Set("forecast_days", strconv.Itoa(days))
	endpoint := c.baseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("forecast request error: status=%d body=%s", resp.StatusCode, string(payload))
	}

	var raw apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}
	if raw.Error {
		return nil, fmt.Errorf("forecast api error: %s", raw.Reason)
	}

	return zipDaily(raw.Daily), nil
}

type apiResponse struct {
	Error    bool      `json:"error"`
	Reason   string    `json:"reason"`
	Timezone string    `json:"timezone"`
	Daily    dailyData `json:"daily"`
}

type dailyData struct {
	Time          []string   `json:"time"`
	Precipitation []*float64 `json:"precipitation_sum"`
	ET0           []*float64 `json:"et0_fao_evapotranspiration"`
	TempMax       []*float64 `json:"temperature_2m_max"`
	TempMin       []*float64 `json:"temperature_2m_min"`
}

// zipDaily joins the parallel arrays by position. Missing precipitation reads as
// zero; missing ET0 stays absent so the engine can apply its default.
func zipDaily(daily dailyData) irrigation.ForecastSeries {
	series := make(irrigation.ForecastSeries, 0, len(daily.Time))
	for i, date := range daily.Time {
		day := irrigation.DailyWeather{Date: date}
		if p := valueAt(daily.Precipitation, i); p != nil {
			day.PrecipitationMM = *p
		}
		if e := valueAt(daily.ET0, i); e != nil {
			day.ET0MM = irrigation.Float(*e)
		}
		series = append(series, day)
	}
	return series
}

func valueAt(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

var _ irrigation.ForecastProvider = (*Client)(nil)
