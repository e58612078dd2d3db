package llm

import (
	"context"
)

// Role values understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a provider-agnostic chat.
type Message struct {
	Role    string
	Content string
}

type Option func(*Options)

// Options are per-call overrides. Zero values leave the backend default.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
	JSON        bool
}

func WithTemperature(temp float64) Option {
	return func(o *Options) { o.Temperature = temp }
}

func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithJSON asks the backend to constrain output to a JSON object.
func WithJSON() Option {
	return func(o *Options) { o.JSON = true }
}

// Apply folds opts over base.
func Apply(base Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// LLMProvider is a chat backend. Deadlines come from ctx.
type LLMProvider interface {
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)
}
