package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres", "sqlite" or "mysql".
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// Quote quotes an identifier.
	Quote(ident string) string

	// ColumnType maps a field to the DDL type.
	ColumnType(f *schema.Field) string

	// AutoIncrementColumn returns the full column definition of an
	// auto-incremented primary key column, and whether it already includes
	// the primary key constraint.
	AutoIncrementColumn(f *schema.Field) (def string, inlinePK bool)

	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool

	// InlineForeignKeys reports whether foreign keys must be declared in
	// CREATE TABLE rather than added afterwards.
	InlineForeignKeys() bool

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, q Querier, table string) (bool, error)

	// Columns returns the existing column names of a table.
	Columns(ctx context.Context, q Querier, table string) (map[string]bool, error)

	// Bind converts a field value into a driver argument.
	Bind(f *schema.Field, v any) any
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name.
func NewDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "postgres":
		return &PostgresDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	}
	return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
}

// --- numbered placeholders ($1 for postgres, ?1 for sqlite) ---

type numberedParamBuilder struct {
	prefix string
	params []any
}

func (p *numberedParamBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("%s%d", p.prefix, len(p.params))
}

func (p *numberedParamBuilder) Params() []any { return p.params }
func (p *numberedParamBuilder) Count() int    { return len(p.params) }

// --- positional placeholders (mysql) ---

type positionalParamBuilder struct {
	params []any
}

func (p *positionalParamBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return "?"
}

func (p *positionalParamBuilder) Params() []any { return p.params }
func (p *positionalParamBuilder) Count() int    { return len(p.params) }

func quoteWith(q string, ident string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}
