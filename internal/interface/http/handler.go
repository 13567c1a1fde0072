package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
	"github.com/yanqian/irrigation-assistant/internal/domain/irrigation"
	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
)

// Handler wires the HTTP transport to domain services.
type Handler struct {
	irrigationSvc irrigation.Service
	assistantSvc  assistant.Service
	logger        *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(irrigationSvc irrigation.Service, assistantSvc assistant.Service, logger *slog.Logger) *Handler {
	return &Handler{
		irrigationSvc: irrigationSvc,
		assistantSvc:  assistantSvc,
		logger:        logger.With("component", "http.handler"),
	}
}

// Decide returns today's irrigation decision for a location.
func (h *Handler) Decide(c *gin.Context) {
	var req irrigation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := h.irrigationSvc.Recommend(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Sufficiency rates user supplied ET0 and rain readings.
func (h *Handler) Sufficiency(c *gin.Context) {
	var req irrigation.SufficiencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := irrigation.AssessSufficiency(req)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Forecast returns the raw daily series. Query: lat, lon, days, timezone.
func (h *Handler) Forecast(c *gin.Context) {
	var req irrigation.ForecastRequest
	var err error
	if req.Latitude, err = optionalFloat(c.Query("lat")); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "lat must be a number", err))
		return
	}
	if req.Longitude, err = optionalFloat(c.Query("lon")); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "lon must be a number", err))
		return
	}
	if raw := c.Query("days"); raw != "" {
		if req.Days, err = strconv.Atoi(raw); err != nil || req.Days < 0 {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "days must be a positive integer", err))
			return
		}
	}
	req.Timezone = strings.TrimSpace(c.Query("timezone"))

	series, err := h.irrigationSvc.Forecast(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"forecast": series})
}

// CreateSession opens a chat session seeded with the welcome message.
func (h *Handler) CreateSession(c *gin.Context) {
	session, err := h.assistantSvc.StartSession(c.Request.Context())
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListMessages returns the session log in order.
func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	msgs, err := h.assistantSvc.History(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": id, "messages": msgs})
}

// PostMessage answers a user turn with a single JSON response.
func (h *Handler) PostMessage(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req assistant.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := h.assistantSvc.Reply(c.Request.Context(), id, req.Content)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StreamMessage answers a user turn using Server-Sent Events.
func (h *Handler) StreamMessage(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req assistant.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	events, err := h.assistantSvc.HandleUserMessage(c.Request.Context(), id, req.Content)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}

	if err := writeEventStream(c, events); err != nil {
		h.logger.Warn("chat stream interrupted", "session_id", id, "error", err)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "session id must be a UUID", err))
		return uuid.Nil, false
	}
	return id, true
}

func optionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// domainError maps AppError codes onto transport statuses.
func domainError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeInvalidInput, apperrors.CodeInvalidConfig:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeProviderUnavailable, apperrors.CodeFallbackError:
		status = http.StatusBadGateway
	case "":
		code = "internal_error"
	}
	return NewHTTPError(status, code, errMessage(err), err)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.CodeSessionError {
		// Store errors can leak connection details.
		return appErr.Message
	}
	return err.Error()
}
