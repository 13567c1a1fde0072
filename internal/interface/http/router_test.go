package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
	"github.com/yanqian/irrigation-assistant/internal/infra/config"
	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
	"github.com/yanqian/irrigation-assistant/pkg/metrics"
)

func TestRouter_DecisionSuccess(t *testing.T) {
	want := irrigation.Response{
		Decision:    irrigation.Decision{Irrigate: true, NeedMM: 2.823, Minutes: 28.2, ET0: 4.47, Rain: 1.2},
		Sufficiency: irrigation.InsufficientFull,
		Advice:      irrigation.InsufficientFull.Advice(),
		Params:      irrigation.DefaultParams(),
	}
	irr := &stubIrrigation{
		recommendFn: func(ctx context.Context, req irrigation.Request) (irrigation.Response, error) {
			require.Equal(t, 20.0, req.FlowRateLPM)
			require.NotNil(t, req.Latitude)
			return want, nil
		},
	}

	rec := perform(newServerUnderTest(t, irr, &stubAssistant{}, nil), http.MethodPost, "/api/v1/irrigation/decision", `{"latitude":12.9,"longitude":77.6,"flowRateLpm":20}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got irrigation.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, want.Decision, got.Decision)
	require.Equal(t, want.Advice, got.Advice)
}

func TestRouter_DecisionErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"provider down", apperrors.Wrap(apperrors.CodeProviderUnavailable, "weather provider unavailable", io.ErrUnexpectedEOF), http.StatusBadGateway, apperrors.CodeProviderUnavailable},
		{"bad params", apperrors.Wrap(apperrors.CodeInvalidConfig, "kc must be a positive number", nil), http.StatusBadRequest, apperrors.CodeInvalidConfig},
		{"bad location", apperrors.Wrap(apperrors.CodeInvalidInput, "latitude must be within [-90, 90]", nil), http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"unexpected", io.ErrClosedPipe, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			irr := &stubIrrigation{
				recommendFn: func(context.Context, irrigation.Request) (irrigation.Response, error) {
					return irrigation.Response{}, tc.err
				},
			}
			rec := perform(newServerUnderTest(t, irr, &stubAssistant{}, nil), http.MethodPost, "/api/v1/irrigation/decision", `{}`)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.code, decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
		})
	}
}

func TestRouter_DecisionInvalidJSON(t *testing.T) {
	rec := perform(newServerUnderTest(t, &stubIrrigation{}, &stubAssistant{}, nil), http.MethodPost, "/api/v1/irrigation/decision", `{"kc":"high"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, "invalid_request", errBody["error"]["code"])
	require.NotEmpty(t, errBody["error"]["message"])
}

func TestRouter_Sufficiency(t *testing.T) {
	srv := newServerUnderTest(t, &stubIrrigation{}, &stubAssistant{}, nil)

	rec := perform(srv, http.MethodPost, "/api/v1/irrigation/sufficiency", `{"et0":4,"rain":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got irrigation.SufficiencyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, irrigation.Partial, got.Sufficiency)

	rec = perform(srv, http.MethodPost, "/api/v1/irrigation/sufficiency", `{"et0":4}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, apperrors.CodeInvalidInput, decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
}

func TestRouter_ForecastQuery(t *testing.T) {
	irr := &stubIrrigation{
		forecastFn: func(ctx context.Context, req irrigation.ForecastRequest) (irrigation.ForecastSeries, error) {
			require.Equal(t, 51.5, *req.Latitude)
			require.Equal(t, -0.12, *req.Longitude)
			require.Equal(t, 2, req.Days)
			require.Equal(t, "Europe/London", req.Timezone)
			return irrigation.ForecastSeries{{Date: "2025-06-01", PrecipitationMM: 3.4}}, nil
		},
	}
	srv := newServerUnderTest(t, irr, &stubAssistant{}, nil)

	rec := perform(srv, http.MethodGet, "/api/v1/weather/forecast?lat=51.5&lon=-0.12&days=2&timezone=Europe/London", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"precipitationMm":3.4`)
	require.Contains(t, rec.Body.String(), `"et0Mm":null`)

	rec = perform(srv, http.MethodGet, "/api/v1/weather/forecast?lat=north", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ChatSessionLifecycle(t *testing.T) {
	id := uuid.New()
	chat := &stubAssistant{
		startFn: func(context.Context) (assistant.Session, error) {
			return assistant.Session{ID: id, Messages: []assistant.Message{{Role: assistant.RoleAssistant, Content: assistant.Welcome}}}, nil
		},
		historyFn: func(_ context.Context, got uuid.UUID) ([]assistant.Message, error) {
			if got != id {
				return nil, apperrors.Wrap(apperrors.CodeNotFound, "session not found", assistant.ErrSessionNotFound)
			}
			return []assistant.Message{{Role: assistant.RoleAssistant, Content: assistant.Welcome}}, nil
		},
		replyFn: func(_ context.Context, got uuid.UUID, text string) (assistant.ChatResponse, error) {
			require.Equal(t, "hello", text)
			return assistant.ChatResponse{SessionID: got, Reply: "👋 Hello!", Source: assistant.SourceRule, Rule: "greeting"}, nil
		},
	}
	srv := newServerUnderTest(t, &stubIrrigation{}, chat, nil)

	rec := perform(srv, http.MethodPost, "/api/v1/chat/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), id.String())

	rec = perform(srv, http.MethodGet, "/api/v1/chat/sessions/"+id.String()+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), assistant.Welcome)

	rec = perform(srv, http.MethodGet, "/api/v1/chat/sessions/"+uuid.NewString()+"/messages", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(srv, http.MethodGet, "/api/v1/chat/sessions/not-a-uuid/messages", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(srv, http.MethodPost, "/api/v1/chat/sessions/"+id.String()+"/messages", `{"content":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp assistant.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "greeting", resp.Rule)
}

func TestRouter_ChatStream(t *testing.T) {
	id := uuid.New()
	events := []assistant.Event{
		{Delta: "Water "},
		{Delta: "early."},
		{Done: true, Source: assistant.SourceFallback, Reply: "Water early."},
	}
	chat := &stubAssistant{
		handleFn: func(_ context.Context, got uuid.UUID, text string) (<-chan assistant.Event, error) {
			require.Equal(t, id, got)
			require.Equal(t, "when?", text)
			ch := make(chan assistant.Event, len(events))
			for _, ev := range events {
				ch <- ev
			}
			close(ch)
			return ch, nil
		},
	}

	rec := perform(newServerUnderTest(t, &stubIrrigation{}, chat, nil), http.MethodPost, "/api/v1/chat/sessions/"+id.String()+"/messages/stream", `{"content":"when?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, len(events))
	for i, frame := range frames {
		require.True(t, strings.HasPrefix(frame, "data: "))
		var got assistant.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &got))
		require.Equal(t, events[i], got)
	}
}

func TestRouter_ChatStreamRejectedBeforeStreaming(t *testing.T) {
	chat := &stubAssistant{
		handleFn: func(context.Context, uuid.UUID, string) (<-chan assistant.Event, error) {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "message cannot be empty", nil)
		},
	}
	rec := perform(newServerUnderTest(t, &stubIrrigation{}, chat, nil), http.MethodPost, "/api/v1/chat/sessions/"+uuid.NewString()+"/messages/stream", `{"content":" "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeErrorBody(t, rec.Body.Bytes())["error"]["message"], "message cannot be empty")
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	collector := metrics.NewCollector("irrigation")
	srv := newServerUnderTest(t, &stubIrrigation{}, &stubAssistant{}, collector)

	rec := perform(srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = perform(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `irrigation_api_requests_total{endpoint="/healthz",method="GET",status="200"} 1`)
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	handler := NewHandler(&stubIrrigation{}, &stubAssistant{}, newTestLogger())
	srv := NewRouter(cfg, handler, nil, newTestLogger())

	rec := perform(srv, http.MethodPost, "/api/v1/irrigation/sufficiency", `{"et0":1,"rain":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = perform(srv, http.MethodPost, "/api/v1/irrigation/sufficiency", `{"et0":1,"rain":1}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = perform(srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRetryExclusionPatterns(t *testing.T) {
	patterns := []string{"/api/v1/chat/sessions/:id/messages/stream"}
	require.True(t, excluded(patterns, "/api/v1/chat/sessions/7f1c/messages/stream"))
	require.False(t, excluded(patterns, "/api/v1/chat/sessions/7f1c/messages"))
	require.False(t, excluded(patterns, "/api/v1/irrigation/decision"))
}

func TestRetryReplaysTransientFailures(t *testing.T) {
	attempts := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, `{"et0":1}`, string(body))
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	h := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: time.Millisecond}, newTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/irrigation/decision", bytes.NewBufferString(`{"et0":1}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, attempts)
}

func perform(server *http.Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newServerUnderTest(t *testing.T, irr irrigation.Service, chat assistant.Service, collector *metrics.Collector) *http.Server {
	t.Helper()
	handler := NewHandler(irr, chat, newTestLogger())
	return NewRouter(testConfig(), handler, collector, newTestLogger())
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubIrrigation struct {
	recommendFn func(ctx context.Context, req irrigation.Request) (irrigation.Response, error)
	forecastFn  func(ctx context.Context, req irrigation.ForecastRequest) (irrigation.ForecastSeries, error)
}

func (s *stubIrrigation) Recommend(ctx context.Context, req irrigation.Request) (irrigation.Response, error) {
	if s.recommendFn != nil {
		return s.recommendFn(ctx, req)
	}
	return irrigation.Response{}, nil
}

func (s *stubIrrigation) Forecast(ctx context.Context, req irrigation.ForecastRequest) (irrigation.ForecastSeries, error) {
	if s.forecastFn != nil {
		return s.forecastFn(ctx, req)
	}
	return nil, nil
}

type stubAssistant struct {
	startFn   func(ctx context.Context) (assistant.Session, error)
	historyFn func(ctx context.Context, id uuid.UUID) ([]assistant.Message, error)
	handleFn  func(ctx context.Context, id uuid.UUID, text string) (<-chan assistant.Event, error)
	replyFn   func(ctx context.Context, id uuid.UUID, text string) (assistant.ChatResponse, error)
}

func (s *stubAssistant) StartSession(ctx context.Context) (assistant.Session, error) {
	if s.startFn != nil {
		return s.startFn(ctx)
	}
	return assistant.Session{ID: uuid.New()}, nil
}

func (s *stubAssistant) History(ctx context.Context, id uuid.UUID) ([]assistant.Message, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, id)
	}
	return nil, nil
}

func (s *stubAssistant) HandleUserMessage(ctx context.Context, id uuid.UUID, text string) (<-chan assistant.Event, error) {
	if s.handleFn != nil {
		return s.handleFn(ctx, id, text)
	}
	ch := make(chan assistant.Event)
	close(ch)
	return ch, nil
}

func (s *stubAssistant) Reply(ctx context.Context, id uuid.UUID, text string) (assistant.ChatResponse, error) {
	if s.replyFn != nil {
		return s.replyFn(ctx, id, text)
	}
	return assistant.ChatResponse{SessionID: id}, nil
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestResolveOrigin(t *testing.T) {
	require.Equal(t, "*", resolveOrigin("https://farm.example", nil))
	require.Equal(t, "https://farm.example", resolveOrigin("https://farm.example", []string{"https://other.example", " https://farm.example"}))
	require.Equal(t, "https://other.example", resolveOrigin("https://evil.example", []string{"https://other.example"}))
}
