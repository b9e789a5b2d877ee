package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")

	l, closer, err := New(Options{Level: "debug", Format: "json", OutputPath: path, Service: "guardwatch", Component: "scheduler"})
	require.NoError(t, err)
	l.Info("Scan run finished", zap.String("run_id", "r-1"), zap.Int("created", 2))
	require.NoError(t, l.Sync())
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &line))
	assert.Equal(t, "Scan run finished", line["msg"])
	assert.Equal(t, "guardwatch", line["service"])
	assert.Equal(t, "scheduler", line["component"])
	assert.Equal(t, "r-1", line["run_id"])
}

func TestNew_BadPath(t *testing.T) {
	_, _, err := New(Options{OutputPath: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}

func TestParseZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, parseZapLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, parseZapLevel("verbose"))
}
