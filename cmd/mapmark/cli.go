package main

import (
	"context"
	"fmt"

	"github.com/mapmark/mapmark/internal/api"
	"github.com/mapmark/mapmark/internal/config"
	"github.com/mapmark/mapmark/internal/export"
)

// runExport writes the export document into export.dir.
func runExport(ctx context.Context) error {
	_, _, err := writeExport(ctx)
	return err
}

func writeExport(ctx context.Context) (string, export.Document, error) {
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return "", export.Document{}, err
	}
	defer cleanup()

	doc, err := a.exporter.Export(ctx)
	if err != nil {
		return "", export.Document{}, err
	}

	cfg := config.GetExportConfig()
	path, err := a.exporter.WriteFile(cfg.Dir, doc, cfg.Compress)
	if err != nil {
		return "", export.Document{}, err
	}
	Logger.Info("Export written", "path", path, "markers", doc.TotalMarkers)
	fmt.Println(path)
	return path, doc, nil
}

// runPublish exports and uploads the file to api.serverUrl.
func runPublish(ctx context.Context) error {
	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)

	if err := client.Healthcheck(ctx); err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}

	path, doc, err := writeExport(ctx)
	if err != nil {
		return err
	}

	err = client.Upload(ctx, path, api.Metadata{
		ExportTime:   doc.ExportTime,
		TotalMarkers: doc.TotalMarkers,
		Session:      config.GetString("session.name"),
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	Logger.Info("Export published", "server", apiCfg.ServerURL, "path", path)
	return nil
}
