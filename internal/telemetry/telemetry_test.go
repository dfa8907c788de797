package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	require.False(t, cfg.Enabled)

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")
}

func TestValidateRejectsInsecureRemote(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "collector.example.com:4317"
	cfg.Insecure = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure connections to remote endpoints")
}

func TestValidateAllowsLocalEndpoints(t *testing.T) {
	for _, endpoint := range []string{"localhost:4317", "127.0.0.1:4317", "[::1]:4317"} {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = endpoint
		cfg.Insecure = true
		assert.NoError(t, cfg.Validate(), endpoint)
	}
}

func TestValidateSamplingRate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Sampling.Rate = 1.5
	require.Error(t, cfg.Validate())

	cfg.Sampling.Rate = 0.5
	require.NoError(t, cfg.Validate())
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Degraded)
}

func TestTestTelemetryRecordsSpans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")
	_, span := tracer.Start(context.Background(), "search.knowledge")
	span.End()

	tt.AssertSpanExists(t, "search.knowledge")
	assert.True(t, tt.IsEnabled())
}
