package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"food-search-be/pkg/failure"

	"github.com/go-playground/validator/v10"
)

// Purpose tags an LLM call with the pipeline step it serves. Each purpose may
// carry its own timeout and model.
type Purpose string

const (
	PurposeGate        Purpose = "gate"
	PurposeIntent      Purpose = "intent"
	PurposeBaseFilters Purpose = "baseFilters"
	PurposeRouteMapper Purpose = "routeMapper"
	PurposeAssistant   Purpose = "assistant"
)

const DefaultPurposeTimeout = 8 * time.Second

var (
	ErrTimeout   = fmt.Errorf("llm: %w", failure.ErrLLMTimeout)
	ErrMalformed = fmt.Errorf("llm: malformed output: %w", failure.ErrLLMFailed)
)

// PurposeConfig is the per-purpose call configuration.
type PurposeConfig struct {
	Timeout     time.Duration
	Model       string
	Temperature float64
}

// Prompt is the input of a purpose call.
type Prompt struct {
	System string
	User   string
}

// Invoker runs a purpose call and decodes the structured result into out.
// out must be a pointer to a struct; `validate` tags on it act as the schema.
type Invoker interface {
	Invoke(ctx context.Context, purpose Purpose, prompt Prompt, out any) error
}

// StructuredInvoker implements Invoker on top of any LLMProvider.
type StructuredInvoker struct {
	provider LLMProvider
	purposes map[Purpose]PurposeConfig
	validate *validator.Validate
}

var _ Invoker = (*StructuredInvoker)(nil)

func NewStructuredInvoker(provider LLMProvider, purposes map[Purpose]PurposeConfig) *StructuredInvoker {
	cfg := make(map[Purpose]PurposeConfig, len(purposes))
	for p, c := range purposes {
		cfg[p] = c
	}
	return &StructuredInvoker{
		provider: provider,
		purposes: cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Config returns the effective configuration for purpose.
func (s *StructuredInvoker) Config(purpose Purpose) PurposeConfig {
	c := s.purposes[purpose]
	if c.Timeout <= 0 {
		c.Timeout = DefaultPurposeTimeout
	}
	return c
}

func (s *StructuredInvoker) Invoke(ctx context.Context, purpose Purpose, prompt Prompt, out any) error {
	cfg := s.Config(purpose)
	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	opts := []Option{WithJSON(), WithTemperature(cfg.Temperature)}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}

	history := make([]Message, 0, 2)
	if prompt.System != "" {
		history = append(history, Message{Role: RoleSystem, Content: prompt.System})
	}
	history = append(history, Message{Role: RoleUser, Content: prompt.User})

	raw, err := s.provider.Chat(callCtx, history, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s after %s: %w", purpose, cfg.Timeout, ErrTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", purpose, err)
		}
		return fmt.Errorf("%s: %w: %w", purpose, failure.ErrLLMFailed, err)
	}

	body := extractJSON(raw)
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", purpose, ErrMalformed, err)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("%s: %w: %v", purpose, ErrMalformed, err)
	}
	return nil
}

// extractJSON trims markdown fences and chatter around the first JSON object.
func extractJSON(raw string) []byte {
	b := bytes.TrimSpace([]byte(raw))
	start := bytes.IndexByte(b, '{')
	end := bytes.LastIndexByte(b, '}')
	if start < 0 || end < start {
		return b
	}
	return b[start : end+1]
}
