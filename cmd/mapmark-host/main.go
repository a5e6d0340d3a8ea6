// Command mapmark-host owns the shared annotation store and answers IPC
// requests from mapmark applications running with storage.type=websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mapmark/mapmark/internal/config"
	"github.com/mapmark/mapmark/internal/dispatcher"
	"github.com/mapmark/mapmark/internal/host"
	"github.com/mapmark/mapmark/internal/logging"
	intOtel "github.com/mapmark/mapmark/internal/otel"
	"github.com/mapmark/mapmark/internal/storage"
	"github.com/mapmark/mapmark/internal/storage/folder"
	pgstorage "github.com/mapmark/mapmark/internal/storage/postgres"
)

var (
	Version   = "0.1.0"
	BuildDate = "unknown"

	AppName = "mapmark-host"
)

var (
	SessionStartTime = time.Now()

	Logger  *slog.Logger
	ZLogger zerolog.Logger
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logFile := setupLogging(*configDir)
	provider := setupTelemetry(ctx, logFile)

	err := run(ctx)
	if err != nil {
		Logger.Error("Exiting with error", "error", err)
	}
	if provider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := provider.Shutdown(shutdownCtx); serr != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", serr)
		}
		cancel()
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func setupLogging(configDir string) *os.File {
	manager := logging.NewSlogManager()
	manager.Setup(nil, "info", nil)
	Logger = manager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	level := config.GetString("logLevel")
	logFile, err := logging.OpenLogFile(config.GetString("logsDir"), AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err)
	}

	var sinks []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, err := logging.DialGelf(gl.Address, AppName, level)
		if err != nil {
			Logger.Error("Failed to set up Graylog sink", "error", err)
		} else {
			sinks = append(sinks, h)
		}
	}

	var file io.Writer = os.Stderr
	if logFile != nil {
		file = logFile
	}
	manager.Setup(file, level, nil, sinks...)
	Logger = manager.Logger()
	ZLogger = logging.NewZerolog(file, level, AppName)
	return logFile
}

// setupTelemetry installs the global meter provider so the dispatcher's
// request metrics are exported. It returns nil when otel.enabled is off.
func setupTelemetry(ctx context.Context, logFile *os.File) *intOtel.Provider {
	cfg := config.GetOTelConfig()
	if !cfg.Enabled {
		return nil
	}
	var w io.Writer
	if logFile != nil {
		w = logFile
	}
	p, err := intOtel.New(ctx, intOtel.Config{
		Enabled:        true,
		ServiceName:    AppName,
		ServiceVersion: Version,
		ExportInterval: cfg.ExportInterval,
		MetricWriter:   w,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		return nil
	}
	p.Install()
	Logger.Info("OTel provider initialized", "endpoint", cfg.Endpoint)
	return p
}

func createBackend(cfg config.HostConfig) (storage.Backend, error) {
	switch cfg.Storage {
	case storage.TypeFolder:
		Logger.Info("Serving shared folder", "dir", cfg.Folder.Dir)
		return folder.New(cfg.Folder, Logger), nil
	case storage.TypePostgres:
		pg := config.GetPostgresConfig()
		Logger.Info("Serving postgres", "host", pg.Host, "database", pg.Database)
		return pgstorage.New(pg, ZLogger.With().Str("component", "postgres").Logger()), nil
	default:
		return nil, fmt.Errorf("unsupported host storage %q", cfg.Storage)
	}
}

func run(ctx context.Context) error {
	Logger.Info("Starting up...", "version", Version, "build", BuildDate)

	cfg := config.GetHostConfig()
	backend, err := createBackend(cfg)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage, err)
	}
	defer backend.Close()

	d, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return err
	}

	if cfg.Secret == "" {
		Logger.Warn("host.secret is empty, IPC connections are not checked")
	}
	server := host.New(backend, d, cfg.Secret, Logger)
	defer server.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("Listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	Logger.Info("Shutting down...")
	_ = server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
