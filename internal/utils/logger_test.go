package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"focuser-service/internal/config"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "focuser.log")
	logger, err := NewLogger(&config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     path,
		MaxSize:    1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	NewDeviceLogger(logger, "/dev/ttyUSB0").LogConnection("open", true, nil)
	logger.Debug("filtered out")
	require.NoError(t, CloseLogger(logger))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"port":"/dev/ttyUSB0"`)
	assert.Contains(t, string(data), "Focuser connection event")
	assert.NotContains(t, string(data), "filtered out")
}

func TestNewLoggerRejectsLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "chatty", Output: "stderr"})
	assert.Error(t, err)
}

func TestOperationLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	op := NewOperationLogger(zap.New(core), "goto", "op-1")
	op.Success(zap.Int("position", 100))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "goto", fields["operation_type"])
	assert.Equal(t, "op-1", fields["operation_id"])
	assert.Equal(t, true, fields["success"])
}
