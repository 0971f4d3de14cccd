package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/config"
	"github.com/teodevgroup/teo-sub005/internal/engine"
	"github.com/teodevgroup/teo-sub005/internal/logger"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
	"github.com/teodevgroup/teo-sub005/internal/store/docstore"
	"github.com/teodevgroup/teo-sub005/internal/store/sqlstore"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relwrite",
	Short: "relwrite resolves nested relational writes against a schema",
	Long: `relwrite loads a schema of models and relations, then creates, updates,
upserts and deletes records together with their related records in one
transaction.

Examples:
  relwrite migrate -c relwrite.yaml
  relwrite seed fixtures.yaml
  relwrite serve`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./relwrite.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

// runtime is everything a command needs, built from the configuration.
type runtime struct {
	cfg    *config.Config
	log    *zap.Logger
	graph  *schema.Graph
	conn   store.Connector
	engine *engine.Engine
}

func (r *runtime) Close() {
	if err := r.conn.Close(); err != nil {
		r.log.Warn("close database", zap.Error(err))
	}
	_ = r.log.Sync()
}

// setup loads config, logger and schema, connects the configured backend
// and creates whatever the schema needs in it.
func setup(ctx context.Context) (*runtime, error) {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	// 3. Schema
	g, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}
	log.Info("schema loaded", zap.String("path", cfg.Schema.Path), zap.Int("models", len(g.Models())))

	// 4. Connect to database
	var conn store.Connector
	if cfg.Database.IsDocument() {
		conn, err = docstore.Open(ctx, cfg.Database, log)
	} else {
		conn, err = sqlstore.Open(ctx, cfg.Database, log)
	}
	if err != nil {
		return nil, err
	}
	log.Info("database connected",
		zap.String("driver", conn.Name()),
		zap.String("host", cfg.Database.Host),
		zap.String("name", cfg.Database.Name),
	)

	// 5. Tables, collections and indexes
	if err := conn.Migrate(ctx, g); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e := engine.New(g, conn,
		engine.WithLogger(log),
		engine.WithMaxDepth(cfg.Engine.MaxDepth),
	)
	return &runtime{cfg: cfg, log: log, graph: g, conn: conn, engine: e}, nil
}
