// Package ollama talks to a local Ollama server over its /api/chat endpoint.
package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"food-search-be/pkg/llm"
)

const (
	DefaultBaseURL     = "http://localhost:11434"
	defaultTemperature = 0.2
	backendName        = "ollama"
)

type Provider struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ llm.LLMProvider = (*Provider)(nil)

func NewProvider(baseURL, model string) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		// Upper bound only; purpose deadlines arrive on the context.
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  modelOptions  `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type modelOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.Apply(llm.Options{Model: p.model, Temperature: defaultTemperature}, opts...)

	req := chatRequest{
		Model:    o.Model,
		Messages: make([]chatMessage, len(history)),
		Options:  modelOptions{Temperature: o.Temperature, NumPredict: o.MaxTokens},
	}
	for i, m := range history {
		role := m.Role
		if role == "model" {
			role = llm.RoleAssistant
		}
		req.Messages[i] = chatMessage{Role: role, Content: m.Content}
	}
	if o.JSON {
		req.Format = "json"
	}

	var resp chatResponse
	if err := llm.PostJSON(ctx, p.client, backendName, p.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
