package store

import (
	"context"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// Connector is a storage backend. It hides whether foreign keys are columns
// or embedded document fields and whether join models are tables or
// collections of pair documents.
type Connector interface {
	Name() string
	Begin(ctx context.Context) (Tx, error)
	// Migrate creates whatever the backend needs for every model in g.
	Migrate(ctx context.Context, g *schema.Graph) error
	Close() error
}

// Tx is one backend transaction or session. All methods run inside it; none
// of them commit.
type Tx interface {
	// Save inserts a new record or updates the dirty fields of a persisted
	// one. On return the record holds every generated value.
	Save(ctx context.Context, r *Record) error
	// Delete removes the record by its original key.
	Delete(ctx context.Context, r *Record) error
	// FindUnique returns the single record matching selector, or nil.
	FindUnique(ctx context.Context, m *schema.Model, selector map[string]any) (*Record, error)
	// FindMany returns all records matching where; a nil where matches all.
	FindMany(ctx context.Context, m *schema.Model, where *Where) ([]*Record, error)
	Commit() error
	Rollback() error
}
