package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
)

var errStreamUnsupported = errors.New("streaming not supported")

// writeEventStream relays events as "data: <json>" frames until the channel
// closes. The producer stops on its own when the request context ends.
func writeEventStream(c *gin.Context, events <-chan assistant.Event) error {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// Drain so the producer can finish and persist the reply.
		for range events {
		}
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", errStreamUnsupported.Error(), nil))
		return errStreamUnsupported
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	var writeErr error
	for ev := range events {
		if writeErr != nil {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			writeErr = err
			continue
		}
		if _, err := c.Writer.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
			writeErr = err
			continue
		}
		flusher.Flush()
	}
	return writeErr
}
