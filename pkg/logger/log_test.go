package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLogLevel(t *testing.T) {
	defer SetLogLevel("error")

	SetLogLevel("DEBUG")
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	SetLogLevel("warn")
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	SetLogLevel("bogus")
	assert.Equal(t, zapcore.WarnLevel, level.Level())
}

func TestJSONOutput(t *testing.T) {
	defer SetLogLevel("error")
	SetLogLevel("info")

	var buf bytes.Buffer
	l := newZap(Config{Format: "json"}, zapcore.AddSync(&buf))
	l.With(String("node", "cfg01")).Info("step started", Int("attempt", 2))
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `"msg":"step started"`)
	assert.Contains(t, out, `"node":"cfg01"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.NotContains(t, out, "hidden")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.With(String("a", "b")).Error("nothing")
		assert.NoError(t, Discard.Sync())
	})
}
