// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/CodedDrexler/eCalc-Auto/internal/config"
)

// setupTestLogger initializes the global logger to write to a buffer.
func setupTestLogger(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := new(bytes.Buffer)
	Initialize(cfg, zapcore.AddSync(buf))
	return buf
}

func TestInitialize(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "ecalc",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("harvest started")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "harvest started")
		assert.Contains(t, out, colorMap["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "ecalc.")
	})

	t.Run("json output is structured", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "calc"})

		GetLogger().Warn("motor option disabled", zap.String("motor", "U8 Lite"))
		Sync()

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "calc", entry["logger"])
		assert.Equal(t, "U8 Lite", entry["motor"])
	})

	t.Run("level filters entries", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("hidden")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("file sink receives entries", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "ecalc.log")
		setupTestLogger(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1})

		GetLogger().Error("snapshot written")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "snapshot written")
	})

	t.Run("only the first call takes effect", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(new(bytes.Buffer)))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("ping")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	require.NotNil(t, GetLogger())
	assert.Nil(t, globalLogger.Load())
}
