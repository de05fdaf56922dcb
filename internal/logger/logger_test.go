package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		log, err := New(level, "")
		require.NoError(t, err, level)
		want, _ := zapcore.ParseLevel(level)
		assert.True(t, log.Core().Enabled(want), level)
		assert.False(t, log.Core().Enabled(want-1), level)
	}

	_, err := New("loud", "")
	assert.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agrivision.log")

	log, err := New("info", path)
	require.NoError(t, err)
	log.Info("Model loaded", zap.Int("classes", 38))
	log.Debug("hidden")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Model loaded", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(38), entry["classes"])
	assert.Contains(t, entry, "timestamp")
}
