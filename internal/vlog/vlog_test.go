package vlog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriterLoggerRespectsMinLevel(t *testing.T) {
	var buf strings.Builder
	l := New(&buf, LevelWarn)
	l.Debug("hidden")
	l.Warn("shown", "key", "value")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown")
	require.Contains(t, out, "key=value")
}

func TestWriterLoggerWithMergesKeyvals(t *testing.T) {
	var buf strings.Builder
	l := New(&buf, LevelInfo).With("component", "test")
	l.Info("hello")

	require.Contains(t, buf.String(), "component=test")
}

func TestZapLoggerForwardsToUnderlyingCore(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapLogger(zap.New(core))

	l.Info("indexed", "collection", "points")
	l.With("request_id", "abc").Warn("slow query")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "indexed", entries[0].Message)
	require.Equal(t, "points", entries[0].ContextMap()["collection"])
	require.Equal(t, "slow query", entries[1].Message)
	require.Equal(t, "abc", entries[1].ContextMap()["request_id"])
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	l := Nop()
	require.NotPanics(t, func() {
		l.Debug("x")
		l.With("a", 1).Error("y")
	})
}
