package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcburst/deepresearch/config"
)

func TestSetupDisabledUsesNoopTracer(t *testing.T) {
	tel, tracer, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, "deepresearch-test")
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetupEnabledRegistersMetrics(t *testing.T) {
	tel, tracer, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true}, "deepresearch-test")
	require.NoError(t, err)
	require.NotNil(t, tracer)
	defer tel.Shutdown(context.Background())

	tel.ObserveAdapterLatency("search", 120*time.Millisecond)

	metrics, err := tel.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metrics)
}
