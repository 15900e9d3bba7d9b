package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/config"
)

func TestInitTracerDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	assert.NotPanics(t, func() { shutdown(context.Background()) })
}
