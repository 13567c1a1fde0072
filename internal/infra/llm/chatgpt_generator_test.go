package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
	"github.com/yanqian/irrigation-assistant/internal/infra/llm/chatgpt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sseServer(t *testing.T, frames []string, hold chan struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
			}
		}
	}))
}

func newGenerator(t *testing.T, url string) *ChatGPTGenerator {
	t.Helper()
	client, err := chatgpt.NewClient("", url, 5*time.Second)
	require.NoError(t, err)
	return NewChatGPTGenerator(client, "mistral", 0.2, discardLogger())
}

func TestChatGPTGeneratorStreamsFragments(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Water "}}]}`,
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"early."}}]}`,
		`[DONE]`,
	}, nil)
	defer srv.Close()

	stream, err := newGenerator(t, srv.URL).Stream(context.Background(), []assistant.Message{
		{Role: assistant.RoleUser, Content: "when?"},
	})
	require.NoError(t, err)

	var parts []string
	for frag := range stream {
		require.NoError(t, frag.Err)
		parts = append(parts, frag.Text)
	}
	require.Equal(t, []string{"Water ", "early."}, parts)
}

func TestChatGPTGeneratorReportsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newGenerator(t, srv.URL).Stream(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=404")
}

func TestChatGPTGeneratorMalformedFrame(t *testing.T) {
	srv := sseServer(t, []string{`{"choices":[{"delta":{"content":"ok"}}]}`, `{not json`}, nil)
	defer srv.Close()

	stream, err := newGenerator(t, srv.URL).Stream(context.Background(), nil)
	require.NoError(t, err)

	first := <-stream
	require.Equal(t, "ok", first.Text)
	second := <-stream
	require.Error(t, second.Err)
	_, open := <-stream
	require.False(t, open)
}

func TestChatGPTGeneratorStopsOnCancel(t *testing.T) {
	hold := make(chan struct{})
	srv := sseServer(t, []string{`{"choices":[{"delta":{"content":"partial"}}]}`}, hold)
	defer srv.Close()
	defer close(hold)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := newGenerator(t, srv.URL).Stream(ctx, nil)
	require.NoError(t, err)

	first := <-stream
	require.Equal(t, "partial", first.Text)
	cancel()

	done := make(chan struct{})
	go func() {
		for range stream {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

type failingClient struct{}

func (failingClient) CreateChatCompletionStream(context.Context, chatgpt.ChatCompletionRequest) (chatgpt.Stream, error) {
	return nil, errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
}

func TestChatGPTGeneratorConnectionRefused(t *testing.T) {
	gen := NewChatGPTGenerator(failingClient{}, "mistral", 0, discardLogger())
	_, err := gen.Stream(context.Background(), nil)
	require.True(t, strings.Contains(err.Error(), "connection refused"))
}

func TestDisabledGenerator(t *testing.T) {
	_, err := DisabledGenerator{}.Stream(context.Background(), nil)
	require.Error(t, err)
}
