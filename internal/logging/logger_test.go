package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := LevelFromString(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestContextFieldsCarriesAgentAndRequest(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithAgentID(context.Background(), "agent-123")
	ctx = WithRequestID(ctx, "req-456")

	tl.Info(ctx, "solution verified", zap.String("bug_id", "b1"))

	tl.AssertLogged(t, zapcore.InfoLevel, "solution verified")
	tl.AssertField(t, "solution verified", "agent.id", "agent-123")
	tl.AssertField(t, "solution verified", "request.id", "req-456")
	tl.AssertField(t, "solution verified", "bug_id", "b1")
}

func TestWithAgentIDValidation(t *testing.T) {
	assert.Panics(t, func() { WithAgentID(context.Background(), "") })
	assert.Panics(t, func() { WithAgentID(context.Background(), "agent id with spaces") })
	assert.NotPanics(t, func() { WithAgentID(context.Background(), "agent_ok-1") })
}

func TestFromContextDefaultsToNop(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	// Must not panic.
	logger.Info(context.Background(), "dropped")
}

func TestFromContextRoundTrip(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestTraceLevelGating(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "ranking candidate")
	tl.AssertLogged(t, TraceLevel, "ranking candidate")
}

func TestNamedAndWith(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Logger.Named("search").With(zap.String("component", "orchestrator"))
	child.Info(context.Background(), "cache miss")

	entries := tl.FilterMessage("cache miss").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "search", entries[0].LoggerName)
}
