package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
	"github.com/yanqian/irrigation-assistant/internal/infra/llm/chatgpt"
)

// StreamClient is the part of the ChatGPT client the generator needs.
type StreamClient interface {
	CreateChatCompletionStream(ctx context.Context, req chatgpt.ChatCompletionRequest) (chatgpt.Stream, error)
}

// ChatGPTGenerator adapts a streaming chat completion to assistant fragments.
type ChatGPTGenerator struct {
	client      StreamClient
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewChatGPTGenerator constructs the adapter.
func NewChatGPTGenerator(client StreamClient, model string, temperature float32, logger *slog.Logger) *ChatGPTGenerator {
	return &ChatGPTGenerator{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger.With("component", "llm.chatgpt_generator"),
	}
}

// Stream implements assistant.Generator. The upstream body is closed when the
// stream ends or ctx is done.
func (g *ChatGPTGenerator) Stream(ctx context.Context, history []assistant.Message) (<-chan assistant.Fragment, error) {
	req := chatgpt.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages:    make([]chatgpt.Message, 0, len(history)),
	}
	for _, msg := range history {
		req.Messages = append(req.Messages, chatgpt.Message{Role: string(msg.Role), Content: msg.Content})
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan assistant.Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		// Recv blocks on the body; closing it unblocks the reader on cancel.
		stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
		defer stop()

		for {
			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				g.logger.Debug("chat completion stream ended with error", "error", err)
				select {
				case out <- assistant.Fragment{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			text := chunk.Content()
			if text == "" {
				continue
			}
			select {
			case out <- assistant.Fragment{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ assistant.Generator = (*ChatGPTGenerator)(nil)

// DisabledGenerator answers with a fixed notice when no model is configured.
type DisabledGenerator struct{}

// Stream implements assistant.Generator.
func (DisabledGenerator) Stream(_ context.Context, _ []assistant.Message) (<-chan assistant.Fragment, error) {
	return nil, errors.New("no language model configured")
}

var _ assistant.Generator = DisabledGenerator{}
