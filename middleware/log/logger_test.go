package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Gopher0727/GroupChat/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("json to stdout", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		l.Info("hello")
		assert.NoError(t, l.Close())
	})

	t.Run("writes to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "groupchat.log")
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
		require.NoError(t, err)

		l.Info("room created", zap.String("chatroom_id", "42"))
		require.NoError(t, l.Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "room created")
		assert.Contains(t, string(content), `"chatroom_id":"42"`)
	})

	t.Run("bad file path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Output: "file", FilePath: filepath.Join(t.TempDir(), "missing", "x.log")})
		assert.Error(t, err)
	})
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestWithContextAddsTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	ctx := WithTraceID(context.Background(), "trace-1")
	l.InfoContext(ctx, "with trace")
	l.InfoContext(context.Background(), "without trace")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "trace-1", entries[0].ContextMap()["trace_id"])
	_, ok := entries[1].ContextMap()["trace_id"]
	assert.False(t, ok)
}

func TestNamedAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).Named("hub").WithFields(zap.Int("shard", 3))

	l.Warn("slow client dropped")

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "hub", e.LoggerName)
	assert.Equal(t, int64(3), e.ContextMap()["shard"])
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.ErrorContext(context.Background(), "ignored")
	assert.NoError(t, l.Close())
}
