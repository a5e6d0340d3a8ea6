// Package config loads mapmark.cfg.json through viper. Every key can be
// overridden from the environment, e.g. MAPMARK_STORAGE_TYPE=memory.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mapmark/mapmark/internal/database"
	"github.com/mapmark/mapmark/internal/influx"
	"github.com/mapmark/mapmark/internal/media"
	"github.com/mapmark/mapmark/internal/storage/folder"
	localstorage "github.com/mapmark/mapmark/internal/storage/local"
	"github.com/mapmark/mapmark/internal/storage/websocket"
)

// FileName is the config file looked up in the config directory.
const FileName = "mapmark.cfg.json"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "MAPMARK"

// StorageConfig selects and configures the application's storage backend.
type StorageConfig struct {
	Type      string
	Local     localstorage.Config
	WebSocket websocket.Config
	Folder    folder.Config
}

// MediaConfig selects where uploaded files are kept.
type MediaConfig struct {
	Type string
	Dir  string
	S3   media.S3Config
}

// ExportConfig controls export file naming and the CLI export target.
type ExportConfig struct {
	FilenamePrefix string
	Dir            string
	Compress       bool
}

// APIConfig points at the server exports are published to.
type APIConfig struct {
	ServerURL string
	APIKey    string
}

// GraylogConfig enables the GELF log sink.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig controls metric export.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	ExportInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// HostConfig configures the host process.
type HostConfig struct {
	Listen  string
	Secret  string
	Storage string
	Folder  folder.Config
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("listen", ":8080")
	viper.SetDefault("session.name", "default")

	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.path", "./data/mapmark.db")
	viper.SetDefault("storage.local.slot", localstorage.DefaultSlot)
	viper.SetDefault("storage.websocket.url", "ws://localhost:8090/ipc")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.timeout", "10s")
	viper.SetDefault("storage.folder.dir", "./shared")
	viper.SetDefault("storage.folder.file", folder.DefaultFile)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mapmark")

	viper.SetDefault("media.type", media.TypeDir)
	viper.SetDefault("media.dir", "./data/media")
	viper.SetDefault("media.s3.bucket", "")
	viper.SetDefault("media.s3.region", "us-east-1")
	viper.SetDefault("media.s3.endpoint", "")
	viper.SetDefault("media.s3.accessKey", "")
	viper.SetDefault("media.s3.secretKey", "")
	viper.SetDefault("media.s3.prefix", "media")

	viper.SetDefault("export.filenamePrefix", "map_annotations")
	viper.SetDefault("export.dir", "./exports")
	viper.SetDefault("export.compress", false)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "mapmark")
	viper.SetDefault("influx.bucket", influx.DefaultBucket)
	viper.SetDefault("influx.backupPath", "./logs/audit.lp.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mapmark")
	viper.SetDefault("otel.exportInterval", "1m")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("host.listen", ":8090")
	viper.SetDefault("host.secret", "")
	viper.SetDefault("host.storage", "folder")
	viper.SetDefault("host.folder.dir", "./shared")
	viper.SetDefault("host.folder.file", folder.DefaultFile)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value such as "10s".
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the application's storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Local: localstorage.Config{
			Path: viper.GetString("storage.local.path"),
			Slot: viper.GetString("storage.local.slot"),
		},
		WebSocket: websocket.Config{
			URL:     viper.GetString("storage.websocket.url"),
			Secret:  viper.GetString("storage.websocket.secret"),
			Timeout: viper.GetDuration("storage.websocket.timeout"),
		},
		Folder: folder.Config{
			Dir:  viper.GetString("storage.folder.dir"),
			File: viper.GetString("storage.folder.file"),
		},
	}
}

// GetPostgresConfig returns the database connection settings.
func GetPostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetMediaConfig returns the media store settings.
func GetMediaConfig() MediaConfig {
	return MediaConfig{
		Type: viper.GetString("media.type"),
		Dir:  viper.GetString("media.dir"),
		S3: media.S3Config{
			Bucket:    viper.GetString("media.s3.bucket"),
			Region:    viper.GetString("media.s3.region"),
			Endpoint:  viper.GetString("media.s3.endpoint"),
			AccessKey: viper.GetString("media.s3.accessKey"),
			SecretKey: viper.GetString("media.s3.secretKey"),
			Prefix:    viper.GetString("media.s3.prefix"),
		},
	}
}

// GetExportConfig returns export settings.
func GetExportConfig() ExportConfig {
	return ExportConfig{
		FilenamePrefix: viper.GetString("export.filenamePrefix"),
		Dir:            viper.GetString("export.dir"),
		Compress:       viper.GetBool("export.compress"),
	}
}

// GetAPIConfig returns the publish target.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetInfluxConfig returns the audit sink settings.
func GetInfluxConfig() influx.Config {
	return influx.Config{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the metric export settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		ExportInterval: viper.GetDuration("otel.exportInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetHostConfig returns the host process settings.
func GetHostConfig() HostConfig {
	return HostConfig{
		Listen:  viper.GetString("host.listen"),
		Secret:  viper.GetString("host.secret"),
		Storage: viper.GetString("host.storage"),
		Folder: folder.Config{
			Dir:  viper.GetString("host.folder.dir"),
			File: viper.GetString("host.folder.file"),
		},
	}
}
