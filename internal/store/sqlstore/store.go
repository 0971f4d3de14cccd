package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql" // Register mysql as database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Register sqlite as database/sql driver

	"github.com/teodevgroup/teo-sub005/internal/config"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is the relational Connector: a database connection and its dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	log     *zap.Logger
}

// Open connects using the database section of the configuration.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	dialect, err := NewDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.IsSQLite() && cfg.URI == "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.IsSQLite() {
		// SQLite: single writer, WAL mode for concurrent reads
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	} else if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}

	s, err := New(ctx, db, dialect, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. It enables foreign key enforcement on SQLite
// and pings the server.
func New(ctx context.Context, db *sql.DB, dialect Dialect, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dialect.Name() == "sqlite" {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{DB: db, Dialect: dialect, log: log.Named("sqlstore")}, nil
}

func (s *Store) Name() string {
	return s.Dialect.Name()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Begin starts a new transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &Tx{tx: tx, dialect: s.Dialect, log: s.log}, nil
}

// Migrate creates missing tables for every model.
func (s *Store) Migrate(ctx context.Context, g *schema.Graph) error {
	return NewMigrator(s).Migrate(ctx, g)
}

var _ store.Connector = (*Store)(nil)
