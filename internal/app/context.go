// Package app wires the workspace pieces the CLI and the server share:
// the sqlite store, migrations, config loading, the template catalog, and
// the operations service.
package app

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/config"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/db"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/migrate"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/operations"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/repo"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/templates"
)

// Context is the per-invocation application wiring.
type Context struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Catalog   *templates.Catalog
	Service   *operations.Service
	Logger    *log.Logger
}

// Open prepares the workspace at dir: ensures the data directory, opens and
// migrates the store, loads config, and builds the operations service.
func Open(dir string, logger *log.Logger) (*Context, error) {
	d, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := migrate.Migrate(d); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		d.Close()
		return nil, err
	}
	catalog := &templates.Catalog{}
	svc := operations.New(d, cfg, catalog, logger)
	return &Context{
		Workspace: dir,
		DB:        d,
		Repo:      repo.Repo{DB: d},
		Config:    cfg,
		Catalog:   catalog,
		Service:   svc,
		Logger:    logger,
	}, nil
}

// Close releases the store. In-flight runs are waited for so their final
// writes land.
func (c *Context) Close() error {
	if c.Service != nil {
		c.Service.Wait()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
