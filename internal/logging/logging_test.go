package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name          string
		logsDir       string
		appName       string
		want          string
	}{
		{
			name:          "basic path",
			logsDir:       "logs",
			appName:       "mapmark",
			want:          filepath.Join("logs", "mapmark.20260212_213836.log"),
		},
		{
			name:          "relative path with dot",
			logsDir:       "./logs",
			appName:       "mapmark",
			want:          filepath.Join(".", "logs", "mapmark.20260212_213836.log"),
		},
		{
			name:          "absolute path",
			logsDir:       filepath.Join("/var", "log", "mapmark"),
			appName:       "mapmark",
			want:          filepath.Join("/var", "log", "mapmark", "mapmark.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.appName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	f, err := OpenLogFile(dir, "mapmark-host", start)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, filepath.Join(dir, "mapmark-host.20240501_080000.log"), f.Name())
	_, err = f.WriteString("line\n")
	require.NoError(t, err)
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer

	log := NewZerolog(&buf, "WARN", "storage")
	log.Info().Msg("hidden")
	log.Warn().Str("dir", "./shared").Msg("watch failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "storage", entry["component"])
	assert.Equal(t, "./shared", entry["dir"])
	assert.Contains(t, entry, "time")
}

func TestNewZerolog_UnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "chatty", "host")
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
