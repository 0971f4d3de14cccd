package sqlstore

import (
	"context"
	"encoding/json"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string            { return "postgres" }
func (d *PostgresDialect) DriverName() string      { return "pgx" }
func (d *PostgresDialect) SupportsReturning() bool { return true }
func (d *PostgresDialect) InlineForeignKeys() bool { return false }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &numberedParamBuilder{prefix: "$"}
}

func (d *PostgresDialect) Quote(ident string) string {
	return quoteWith(`"`, ident)
}

func (d *PostgresDialect) ColumnType(f *schema.Field) string {
	switch f.Type {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeBigInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeDecimal:
		return "NUMERIC"
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeDateTime:
		return "TIMESTAMPTZ"
	case schema.TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) AutoIncrementColumn(f *schema.Field) (string, bool) {
	if f.Type == schema.TypeBigInt {
		return d.Quote(f.Column) + " BIGSERIAL", false
	}
	return d.Quote(f.Column) + " SERIAL", false
}

func (d *PostgresDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema())`,
		table,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) Columns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`,
		table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) Bind(f *schema.Field, v any) any {
	if f.Type == schema.TypeJSON && v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(b)
	}
	return v
}

var _ Dialect = (*PostgresDialect)(nil)
