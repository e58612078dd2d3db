package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STATE_BACKEND", "")
	t.Setenv("MAX_CONCURRENT_SEARCHES", "")
	t.Setenv("WS_ALLOWED_ORIGINS", "")

	cfg := FromEnv()

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Admission.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Admission.MaxQueueWait)
	assert.Equal(t, 10*time.Minute, cfg.Store.TTL)
	assert.Equal(t, "/ws/search", cfg.WebSocket.Path)
	assert.Nil(t, cfg.WebSocket.AllowedOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STATE_BACKEND", "Redis")
	t.Setenv("MAX_CONCURRENT_SEARCHES", "3")
	t.Setenv("MAX_QUEUE_WAIT_MS", "250")
	t.Setenv("WS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("WS_AUTH_REQUIRED", "true")
	t.Setenv("LLM_GATE_TIMEOUT_MS", "1500")

	cfg := FromEnv()

	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Admission.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Admission.MaxQueueWait)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebSocket.AllowedOrigins)
	assert.True(t, cfg.WebSocket.AuthRequired)
	assert.Equal(t, 1500*time.Millisecond, cfg.Ai.GateTimeout)
}

func TestFromEnv_Sanitizes(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, cfg *Config)
	}{
		{"zero concurrency clamps to one", "MAX_CONCURRENT_SEARCHES", "0", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 1, cfg.Admission.MaxConcurrent)
		}},
		{"unknown backend falls back to memory", "STATE_BACKEND", "etcd", func(t *testing.T, cfg *Config) {
			assert.Equal(t, StoreMemory, cfg.Store.Backend)
		}},
		{"negative duration uses default", "STATE_TTL_SECONDS", "-5", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 10*time.Minute, cfg.Store.TTL)
		}},
		{"garbage bool uses default", "WS_AUTH_REQUIRED", "maybe", func(t *testing.T, cfg *Config) {
			assert.False(t, cfg.WebSocket.AuthRequired)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			tt.check(t, FromEnv())
		})
	}
}
