// Package app assembles the store, plugin registry and engine from config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"sprintsync/internal/config"
	"sprintsync/internal/db"
	"sprintsync/internal/engine"
	"sprintsync/internal/logging"
	"sprintsync/internal/migrate"
	"sprintsync/internal/plugins"
	"sprintsync/internal/plugins/webhook"
	"sprintsync/internal/plugins/zulip"
)

// Catalog lists every plugin this binary can build. Which ones run is up
// to plugins.enabled in the config.
func Catalog() plugins.Catalog {
	return plugins.Catalog{
		zulip.Name:   zulip.Factory,
		webhook.Name: webhook.Factory,
	}
}

type App struct {
	DB      *sql.DB
	Config  *config.Config
	Plugins *plugins.Registry
	Engine  engine.Engine
}

// Open opens (and migrates) the workspace database and builds the engine.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: cfg.Store.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	reg, err := plugins.Build(Catalog(), cfg.Plugins, plugins.Deps{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: cfg.Zulip.Timeout},
		Logger:     logging.Component("plugins"),
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	log := logging.Component("app")
	log.Debug().Strs("plugins", reg.Names()).Str("db", db.Path(cfg.Store.Workspace)).Msg("workspace ready")
	return &App{
		DB:      conn,
		Config:  cfg,
		Plugins: reg,
		Engine:  engine.New(conn, cfg, reg),
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
