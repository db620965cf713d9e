package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoggerUsableBeforeInit(t *testing.T) {
	require.NotNil(t, Logger)
	// must not panic when library code logs before InitTelemetry runs
	Logger.Info("pre-init log line")
}

func TestInitTelemetryConfiguresLogger(t *testing.T) {
	require.NoError(t, InitTelemetry("payment-reconciler-test"))
	defer Shutdown(context.Background())

	assert.Equal(t, "payment-reconciler-test", ServiceName)
	require.NotNil(t, Logger)
	assert.True(t, Logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Logger.Core().Enabled(zapcore.DebugLevel), "production config logs at info and above")
}
