// Package openai talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, the Hugging Face router, vLLM, ...).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"food-search-be/pkg/llm"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	defaultMaxTokens = 500
	backendName      = "openai"
)

var ErrNoChoices = errors.New("openai: empty choices")

type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ llm.LLMProvider = (*Provider)(nil)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewProvider(apiKey, baseURL, model string) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	o := llm.Apply(llm.Options{Model: p.model, MaxTokens: defaultMaxTokens}, options...)

	req := chatRequest{
		Model:       o.Model,
		Messages:    make([]chatMessage, len(history)),
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	}
	for i, m := range history {
		req.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if o.JSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	header := http.Header{}
	if p.apiKey != "" {
		header.Set("Authorization", "Bearer "+p.apiKey)
	}

	var resp chatResponse
	if err := llm.PostJSON(ctx, p.client, backendName, p.baseURL+"/chat/completions", header, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
