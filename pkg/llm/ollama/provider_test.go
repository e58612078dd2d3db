package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"food-search-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:   got.Model,
			Message: chatMessage{Role: "assistant", Content: `{"route":"NEARBY"}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	p := NewProvider(srv.URL+"/", "llama3")
	out, err := p.Chat(context.Background(),
		[]llm.Message{{Role: "model", Content: "hi"}, {Role: llm.RoleUser, Content: "sushi near me"}},
		llm.WithJSON(), llm.WithModel("qwen2.5"), llm.WithMaxTokens(64))
	require.NoError(t, err)

	assert.Equal(t, `{"route":"NEARBY"}`, out)
	assert.Equal(t, "qwen2.5", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, llm.RoleAssistant, got.Messages[0].Role)
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.InDelta(t, defaultTemperature, got.Options.Temperature, 0.0001)
}

func TestChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewProvider(srv.URL, "missing").Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.Error(t, err)

	var statusErr *llm.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "ollama", statusErr.Backend)
	assert.Equal(t, "model not found", statusErr.Body)
}

func TestNewProvider_DefaultBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, NewProvider("", "llama3").baseURL)
}
