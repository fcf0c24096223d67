package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "camgate.log")
	t.Cleanup(func() {
		Close()
		Log = zap.NewNop()
	})

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Output: "file", FilePath: path, MaxSize: 1}))

	Named("channel").Info("Channel started", zap.Int("port", 8088))
	Debug("debug line")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logger":"channel"`)
	assert.Contains(t, string(data), `"port":8088`)
	assert.Contains(t, string(data), "debug line")
}

func TestInitLogger_FileRequiresPath(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	err := InitLogger(LogConfig{Level: "info", Output: "file"})
	assert.ErrorContains(t, err, "file_path is required")
}

func TestInitLogger_BadLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	require.NoError(t, InitLogger(LogConfig{Level: "verbose", Output: "console"}))
	assert.False(t, Log.Core().Enabled(zap.DebugLevel))
	assert.True(t, Log.Core().Enabled(zap.InfoLevel))
}
