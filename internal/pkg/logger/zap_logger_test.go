package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := newWithCore(core)

	l.Info("PIPELINE", "stage done", map[string]interface{}{"stage": "gate"})
	l.Error("PIPELINE", "stage failed", map[string]interface{}{"error": "boom"})
	l.Debug("PIPELINE", "no details", nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0].ContextMap()
	assert.Equal(t, "PIPELINE", first["module"])
	assert.Equal(t, map[string]interface{}{"stage": "gate"}, first["details"])

	second := entries[1].ContextMap()
	assert.Equal(t, "boom", second["error_ref"])

	third := entries[2].ContextMap()
	assert.Equal(t, map[string]interface{}{}, third["details"])
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Warn("X", "dropped", nil)
		_ = l.Sync()
	})
}
