package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapmark/mapmark/internal/config"
	"github.com/mapmark/mapmark/internal/storage"
	"github.com/mapmark/mapmark/internal/storage/folder"
	pgstorage "github.com/mapmark/mapmark/internal/storage/postgres"
)

func init() {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ZLogger = zerolog.Nop()
}

func TestCreateBackend(t *testing.T) {
	b, err := createBackend(config.HostConfig{Storage: storage.TypeFolder, Folder: folder.Config{Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &folder.Backend{}, b)

	b, err = createBackend(config.HostConfig{Storage: storage.TypePostgres})
	require.NoError(t, err)
	assert.IsType(t, &pgstorage.Backend{}, b)
}

func TestCreateBackend_Unsupported(t *testing.T) {
	for _, typ := range []string{"", storage.TypeWebSocket, "redis"} {
		_, err := createBackend(config.HostConfig{Storage: typ})
		require.Error(t, err, typ)
		assert.Contains(t, err.Error(), "unsupported host storage")
	}
}

func TestSetupTelemetry(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("otel.enabled", false)
	assert.Nil(t, setupTelemetry(context.Background(), nil))

	viper.Set("otel.enabled", true)
	assert.Nil(t, setupTelemetry(context.Background(), nil), "no exporter configured")

	f, err := os.Create(filepath.Join(t.TempDir(), "host.log"))
	require.NoError(t, err)
	defer f.Close()

	p := setupTelemetry(context.Background(), f)
	require.NotNil(t, p)
	assert.True(t, p.Enabled())
	require.NoError(t, p.Shutdown(context.Background()))
}
