package main

import (
	"context"
	"fmt"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/config"
	"github.com/mapmark/mapmark/internal/export"
	"github.com/mapmark/mapmark/internal/media"
	"github.com/mapmark/mapmark/internal/repository"
	"github.com/mapmark/mapmark/internal/storage"
	"github.com/mapmark/mapmark/internal/storage/folder"
	localstorage "github.com/mapmark/mapmark/internal/storage/local"
	"github.com/mapmark/mapmark/internal/storage/memory"
	pgstorage "github.com/mapmark/mapmark/internal/storage/postgres"
	wsstorage "github.com/mapmark/mapmark/internal/storage/websocket"
)

// createStorageBackend picks the single authoritative backend for this run.
func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case storage.TypeLocal:
		Logger.Info("Local storage backend selected", "path", storageCfg.Local.Path, "slot", storageCfg.Local.Slot)
		return localstorage.New(storageCfg.Local), nil

	case storage.TypeWebSocket:
		Logger.Info("WebSocket storage backend selected", "url", storageCfg.WebSocket.URL)
		return wsstorage.New(storageCfg.WebSocket, Logger), nil

	case storage.TypeFolder:
		Logger.Info("Folder storage backend selected", "dir", storageCfg.Folder.Dir)
		return folder.New(storageCfg.Folder, Logger), nil

	case storage.TypePostgres:
		pg := config.GetPostgresConfig()
		Logger.Info("Postgres storage backend selected", "host", pg.Host, "database", pg.Database)
		return pgstorage.New(pg, ZLogger.With().Str("component", "postgres").Logger()), nil

	case storage.TypeMemory:
		Logger.Info("Memory storage backend selected")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

func createMediaStore(ctx context.Context, cfg config.MediaConfig) (media.Store, error) {
	switch cfg.Type {
	case media.TypeS3:
		client, err := media.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		Logger.Info("S3 media store selected", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		return media.NewS3Store(client, cfg.S3)

	case media.TypeDir, "":
		Logger.Info("Directory media store selected", "dir", cfg.Dir)
		return media.NewDirStore(cfg.Dir)

	default:
		return nil, fmt.Errorf("unknown media type %q", cfg.Type)
	}
}

// downloadLister reads exports over the host's download channel.
type downloadLister struct {
	backend *wsstorage.Backend
}

func (d downloadLister) ListAll(ctx context.Context) ([]annotation.Annotation, error) {
	records, err := d.backend.DownloadMarkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("download: %w: %w", repository.ErrBackendUnavailable, err)
	}
	return records, nil
}

func exportSource(backend storage.Backend, repo *repository.Repository) export.Lister {
	if ws, ok := backend.(*wsstorage.Backend); ok {
		return downloadLister{backend: ws}
	}
	return repo
}
