package tokenizer

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
)

const fallbackEncoding = "cl100k_base"

// Counter counts prompt tokens with a BPE encoding. Without an encoding it
// falls back to an upper-biased estimate.
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter loads the encoding for model, then cl100k_base. Local models such
// as mistral have no registered encoding, and loading may fail offline; both
// cases degrade to the estimate.
func NewCounter(model string, logger *slog.Logger) *Counter {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return &Counter{encoding: enc}
	}
	enc, err = tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		logger.Warn("token encoding unavailable, estimating token counts", "model", model, "error", err)
		return &Counter{}
	}
	return &Counter{encoding: enc}
}

// CountTokens implements assistant.TokenCounter.
func (c *Counter) CountTokens(text string) int {
	if c == nil || c.encoding == nil {
		return estimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// estimateTokens assumes about one token per two runes and never fewer than
// the word count.
func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	words := len(strings.Fields(trimmed))
	byRunes := (utf8.RuneCountInString(trimmed) + 1) / 2
	if byRunes < words {
		return words
	}
	return byRunes
}

var _ assistant.TokenCounter = (*Counter)(nil)
