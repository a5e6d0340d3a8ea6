// Command mapmark serves an annotation map over HTTP.
//
// Usage:
//
//	mapmark [-config dir] [serve|export|publish]
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
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mapmark/mapmark/internal/config"
	"github.com/mapmark/mapmark/internal/controller"
	"github.com/mapmark/mapmark/internal/export"
	"github.com/mapmark/mapmark/internal/handlers"
	"github.com/mapmark/mapmark/internal/influx"
	"github.com/mapmark/mapmark/internal/logging"
	"github.com/mapmark/mapmark/internal/mapview"
	"github.com/mapmark/mapmark/internal/media"
	intOtel "github.com/mapmark/mapmark/internal/otel"
	"github.com/mapmark/mapmark/internal/repository"
	"github.com/mapmark/mapmark/internal/storage"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"

	AppName = "mapmark"
)

var (
	SessionStartTime = time.Now()
	SessionID        = uuid.NewString()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager
	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger
	// ZLogger is handed to the storage and audit managers
	ZLogger zerolog.Logger

	LogFile *os.File

	// OTelProvider exports the repository, controller and dispatcher metrics
	OTelProvider *intOtel.Provider

	storageBackend storage.Backend
	auditManager   *influx.Manager
)

// app is one map session and everything it reads from.
type app struct {
	repo     *repository.Repository
	canvas   *mapview.Canvas
	ctrl     *controller.Controller
	exporter *export.Exporter
	media    media.Store
}

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	command := "serve"
	if flag.NArg() > 0 {
		command = strings.ToLower(flag.Arg(0))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupLogging(*configDir)
	defer closeLogging()
	setupTelemetry(ctx)
	defer shutdownTelemetry()

	Logger.Info("Starting up...", "version", Version, "build", BuildDate, "command", command)

	var err error
	switch command {
	case "serve":
		err = serve(ctx)
	case "export":
		err = runExport(ctx)
	case "publish":
		err = runPublish(ctx)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		Logger.Error("Exiting with error", "error", err)
		shutdownTelemetry()
		closeLogging()
		os.Exit(1)
	}
}

// setupLogging loads the config and sets up console, file and optional
// Graylog sinks. Missing config is not fatal; defaults apply.
func setupLogging(configDir string) {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	level := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")

	var err error
	LogFile, err = logging.OpenLogFile(logsDir, AppName, SessionStartTime)
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

	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	session := config.GetString("session.name")
	storageType := config.GetStorageConfig().Type
	provider := func(ctx context.Context) []slog.Attr {
		attrs := []slog.Attr{
			slog.String("session", session),
			slog.String("session_id", SessionID),
			slog.String("storage", storageType),
		}
		return append(attrs, logging.RequestAttrs(ctx)...)
	}
	SlogManager.Setup(file, level, provider, sinks...)
	Logger = SlogManager.Logger()

	if LogFile != nil {
		ZLogger = logging.NewZerolog(LogFile, level, AppName)
		Logger.Info("Logging to file", "path", LogFile.Name())
	} else {
		ZLogger = logging.NewZerolog(os.Stderr, level, AppName)
	}
}

func closeLogging() {
	if LogFile != nil {
		_ = LogFile.Close()
		LogFile = nil
	}
}

// setupTelemetry installs the global meter provider when otel.enabled is
// set. Metrics go to the session log file and, if configured, an OTLP endpoint.
func setupTelemetry(ctx context.Context) {
	cfg := config.GetOTelConfig()
	if !cfg.Enabled {
		return
	}
	var w io.Writer
	if LogFile != nil {
		w = LogFile
	}
	p, err := intOtel.New(ctx, intOtel.Config{
		Enabled:        true,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: Version,
		ExportInterval: cfg.ExportInterval,
		MetricWriter:   w,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		return
	}
	p.Install()
	OTelProvider = p
	Logger.Info("OTel provider initialized", "endpoint", cfg.Endpoint, "interval", cfg.ExportInterval)
}

func shutdownTelemetry() {
	if OTelProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := OTelProvider.Shutdown(ctx); err != nil {
		Logger.Warn("Failed to shut down OTel provider", "error", err)
	}
	OTelProvider = nil
}

// setupAudit connects the InfluxDB audit sink when enabled. Failure only
// disables auditing.
func setupAudit(ctx context.Context) repository.Option {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	auditManager = influx.NewManager(cfg, ZLogger.With().Str("component", "influx").Logger(), config.GetString("influx.backupPath"))
	if err := auditManager.Connect(ctx); err != nil {
		Logger.Warn("Audit sink unavailable", "error", err)
		auditManager = nil
		return nil
	}
	return repository.WithAuditor(auditManager)
}

// closeAudit flushes and releases the audit sink, if one is connected.
func closeAudit() {
	if auditManager == nil {
		return
	}
	if err := auditManager.Close(); err != nil {
		Logger.Warn("Failed to close audit sink", "error", err)
	}
	auditManager = nil
}

// releaseBackend closes the audit sink and then the storage backend.
func releaseBackend(backend storage.Backend) {
	closeAudit()
	if err := backend.Close(); err != nil {
		Logger.Warn("Failed to close storage backend", "error", err)
	}
}

// buildApp wires storage, media, repository, map and controller together
// and draws what the backend already holds.
func buildApp(ctx context.Context) (*app, func(), error) {
	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	storageBackend = backend
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	store, err := createMediaStore(ctx, config.GetMediaConfig())
	if err != nil {
		releaseBackend(backend)
		return nil, nil, err
	}

	opts := []repository.Option{repository.WithLogger(Logger)}
	if audit := setupAudit(ctx); audit != nil {
		opts = append(opts, audit)
	}
	repo, err := repository.New(backend, opts...)
	if err != nil {
		releaseBackend(backend)
		return nil, nil, err
	}

	canvas := mapview.NewCanvas()
	ctrl, err := controller.New(repo, canvas,
		controller.WithMediaStore(store),
		controller.WithLogger(Logger),
	)
	if err != nil {
		releaseBackend(backend)
		return nil, nil, err
	}

	a := &app{
		repo:     repo,
		canvas:   canvas,
		ctrl:     ctrl,
		exporter: export.New(exportSource(backend, repo), config.GetExportConfig().FilenamePrefix),
		media:    store,
	}

	if w, ok := backend.(storage.Watchable); ok {
		w.OnExternalChange(func() {
			if err := ctrl.Load(context.Background()); err != nil {
				Logger.Warn("Reload after external change failed", "error", err)
			}
		})
	}

	return a, func() { releaseBackend(backend) }, nil
}

func serve(ctx context.Context) error {
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.ctrl.Load(ctx); err != nil {
		Logger.Warn("Initial load failed, starting with an empty map", "error", err)
	}

	svc := handlers.NewService(handlers.Dependencies{
		Controller: a.ctrl,
		Canvas:     a.canvas,
		Exporter:   a.exporter,
		Media:      a.media,
		Logger:     Logger,
	})

	srv := &http.Server{
		Addr:              config.GetString("listen"),
		Handler:           svc.Router(),
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
