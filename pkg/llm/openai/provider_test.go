package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"food-search-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr string
	}{
		{"first choice", `{"choices":[{"message":{"role":"assistant","content":"{\"verdict\":\"YES\"}"}}]}`, `{"verdict":"YES"}`, ""},
		{"no choices", `{"choices":[]}`, "", "empty choices"},
		{"error body", `{"error":{"message":"quota exceeded"}}`, "", "quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got chatRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			out, err := NewProvider("sk-test", srv.URL+"/v1", "gpt-4o-mini").
				Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "ramen"}}, llm.WithJSON())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, "gpt-4o-mini", got.Model)
			assert.Equal(t, defaultMaxTokens, got.MaxTokens)
			require.NotNil(t, got.ResponseFormat)
			assert.Equal(t, "json_object", got.ResponseFormat.Type)
		})
	}
}
