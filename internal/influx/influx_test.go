package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop(), "")
	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, m.IsValid)
}

func TestNewManager_DefaultBucket(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop(), "")
	assert.Equal(t, DefaultBucket, m.cfg.Bucket)
}

func TestConfigURL(t *testing.T) {
	c := Config{Protocol: "http", Host: "localhost", Port: "8086"}
	assert.Equal(t, "http://localhost:8086", c.URL())
}

func TestAuditPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)

	line := influxdb2_write.PointToLineProtocol(AuditPoint("create", "marker_1", 1500*time.Microsecond, nil, at), time.Nanosecond)
	assert.Contains(t, line, Measurement+",")
	assert.Contains(t, line, "operation=create")
	assert.Contains(t, line, "outcome=ok")
	assert.Contains(t, line, `annotation_id="marker_1"`)
	assert.Contains(t, line, "duration_ms=1.5")
	assert.NotContains(t, line, "error=")

	line = influxdb2_write.PointToLineProtocol(AuditPoint("list", "", time.Millisecond, errors.New("boom"), at), time.Nanosecond)
	assert.Contains(t, line, "outcome=error")
	assert.Contains(t, line, `error="boom"`)
	assert.NotContains(t, line, "annotation_id")
}

func TestWritePoint_NoBackup(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop(), "")
	err := m.WritePoint(AuditPoint("list", "", 0, nil, time.Now()))
	require.Error(t, err)
}

func TestAudit_BackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.lp.gz")
	m := NewManager(Config{}, zerolog.Nop(), path)
	require.NoError(t, m.openBackup())

	m.Audit(context.Background(), "delete", "marker_9", time.Millisecond, nil)
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Contains(t, string(data), "operation=delete")
	assert.Contains(t, string(data), `annotation_id="marker_9"`)
}
