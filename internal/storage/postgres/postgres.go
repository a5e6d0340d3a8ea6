// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
// It wraps the GORM backend via composition; the only postgres-specific
// concern is opening and closing the connection.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mapmark/mapmark/internal/database"
	gormstorage "github.com/mapmark/mapmark/internal/storage/gorm"
)

// Backend stores annotations in a postgres table.
type Backend struct {
	*gormstorage.Backend
	cfg     database.PostgresConfig
	manager *database.Manager
}

// New creates a new postgres storage backend. The connection is opened in Init.
func New(cfg database.PostgresConfig, log zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(nil),
		cfg:     cfg,
		manager: database.NewManager(log),
	}
}

// Init connects and migrates the annotations table.
func (b *Backend) Init() error {
	if err := b.manager.ConnectPostgres(b.cfg); err != nil {
		return fmt.Errorf("failed to connect postgres backend: %w", err)
	}
	b.Backend = gormstorage.New(b.manager.DB)
	return b.Backend.Init()
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	return b.manager.Close()
}
