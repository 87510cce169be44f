package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		log       func(l *slog.Logger)
		checkFunc func(t *testing.T, output string)
	}{
		{
			name:   "Text Logger Info Level",
			config: Config{Level: "info", Format: "text"},
			log:    func(l *slog.Logger) { l.Info("review queued", "pr", 7) },
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "level=INFO")
				assert.Contains(t, output, `msg="review queued"`)
				assert.Contains(t, output, "pr=7")
			},
		},
		{
			name:   "JSON Logger Debug Level",
			config: Config{Level: "debug", Format: "json"},
			log:    func(l *slog.Logger) { l.Debug("lock acquired") },
			checkFunc: func(t *testing.T, output string) {
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(output), &entry))
				assert.Equal(t, "DEBUG", entry["level"])
				assert.Equal(t, "lock acquired", entry["msg"])
				assert.Contains(t, entry, "source")
			},
		},
		{
			name:   "Debug suppressed at warn level",
			config: Config{Level: "warn", Format: "text"},
			log:    func(l *slog.Logger) { l.Info("hidden") },
			checkFunc: func(t *testing.T, output string) {
				assert.Empty(t, output)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewLogger(tt.config, &buf))
			tt.checkFunc(t, buf.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestOpenOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	w := OpenOutput(Config{Output: "file", File: path})

	logger := NewLogger(Config{Level: "info"}, w)
	logger.Info("written to file")

	assert.FileExists(t, path)
}
