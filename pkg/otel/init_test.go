package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimScheme(t *testing.T) {
	assert.Equal(t, "collector:4317", trimScheme("http://collector:4317"))
	assert.Equal(t, "collector:4317", trimScheme("https://collector:4317"))
	assert.Equal(t, "localhost:4317", trimScheme("localhost:4317"))
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := InitOpenTelemetry(context.Background(), Config{ServiceName: "guardwatch"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
