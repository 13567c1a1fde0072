package assistant

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
)

// EmitFunc forwards a reply fragment to the caller. It returns an error once
// the caller has gone away, and responders must stop at that point.
type EmitFunc func(fragment string) error

// Outcome describes which responder handled a turn.
type Outcome struct {
	Handled bool
	Source  Source
	Rule    string
}

// Responder is one link of the reply chain.
type Responder interface {
	Respond(ctx context.Context, history []Message, emit EmitFunc) (Outcome, error)
}

// Chain tries each responder in order until one handles the turn.
type Chain []Responder

// Respond implements Responder.
func (c Chain) Respond(ctx context.Context, history []Message, emit EmitFunc) (Outcome, error) {
	for _, r := range c {
		outcome, err := r.Respond(ctx, history, emit)
		if err != nil || outcome.Handled {
			return outcome, err
		}
	}
	return Outcome{}, nil
}

// RuleResponder answers the latest user message from the rule table.
type RuleResponder struct {
	rules    *RuleSet
	forecast ForecastFunc
}

// NewRuleResponder wires the rule table to a forecast source.
func NewRuleResponder(rules *RuleSet, forecast ForecastFunc) *RuleResponder {
	return &RuleResponder{rules: rules, forecast: forecast}
}

// Respond implements Responder.
func (r *RuleResponder) Respond(ctx context.Context, history []Message, emit EmitFunc) (Outcome, error) {
	text, ok := latestUserText(history)
	if !ok {
		return Outcome{}, nil
	}
	reply, err := r.rules.Respond(ctx, text, r.forecast)
	if err != nil {
		return Outcome{Handled: true, Source: SourceRule, Rule: reply.Rule}, err
	}
	if !reply.Matched {
		return Outcome{}, nil
	}
	outcome := Outcome{Handled: true, Source: SourceRule, Rule: reply.Rule}
	return outcome, emit(reply.Text)
}

// FallbackResponder streams a generated reply for anything the rules missed.
type FallbackResponder struct {
	generator    Generator
	counter      TokenCounter
	systemPrompt string
	maxTokens    int
}

// NewFallbackResponder wires the generator. counter may be nil, which disables
// history trimming.
func NewFallbackResponder(generator Generator, counter TokenCounter, systemPrompt string, maxTokens int) *FallbackResponder {
	return &FallbackResponder{
		generator:    generator,
		counter:      counter,
		systemPrompt: strings.TrimSpace(systemPrompt),
		maxTokens:    maxTokens,
	}
}

// Respond implements Responder. It always handles the turn.
func (f *FallbackResponder) Respond(ctx context.Context, history []Message, emit EmitFunc) (Outcome, error) {
	outcome := Outcome{Handled: true, Source: SourceFallback}

	prompt := f.buildPrompt(history)
	stream, err := f.generator.Stream(ctx, prompt)
	if err != nil {
		return outcome, apperrors.Wrap(apperrors.CodeFallbackError, "fallback generator failed", err)
	}

	for {
		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		case frag, open := <-stream:
			if !open {
				// The generator also closes on cancellation.
				return outcome, ctx.Err()
			}
			if frag.Err != nil {
				if errors.Is(frag.Err, context.Canceled) || errors.Is(frag.Err, context.DeadlineExceeded) {
					return outcome, frag.Err
				}
				return outcome, apperrors.Wrap(apperrors.CodeFallbackError, "fallback stream interrupted", frag.Err)
			}
			if frag.Text == "" {
				continue
			}
			if err := emit(frag.Text); err != nil {
				return outcome, err
			}
		}
	}
}

// buildPrompt keeps the newest turns that fit the token budget, always
// including the latest one, and prepends the system prompt.
func (f *FallbackResponder) buildPrompt(history []Message) []Message {
	kept := history
	if f.counter != nil && f.maxTokens > 0 {
		total := 0
		start := len(history)
		for i := len(history) - 1; i >= 0; i-- {
			tokens := f.counter.CountTokens(history[i].Content)
			if total+tokens > f.maxTokens && start < len(history) {
				break
			}
			total += tokens
			start = i
		}
		kept = history[start:]
	}

	out := make([]Message, 0, len(kept)+1)
	if f.systemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: f.systemPrompt})
	}
	return append(out, kept...)
}

func latestUserText(history []Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content, true
		}
	}
	return "", false
}

// NewDefaultChain answers from the rule table first and falls back to the
// generator on no match.
func NewDefaultChain(cfg Config, rules *RuleSet, forecast ForecastFunc, generator Generator, counter TokenCounter) Chain {
	return Chain{
		NewRuleResponder(rules, forecast),
		NewFallbackResponder(generator, counter, cfg.SystemPrompt, cfg.MaxHistoryTokens),
	}
}
