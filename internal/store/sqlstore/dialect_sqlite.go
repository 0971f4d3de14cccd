package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string            { return "sqlite" }
func (d *SQLiteDialect) DriverName() string      { return "sqlite" }
func (d *SQLiteDialect) SupportsReturning() bool { return true }
func (d *SQLiteDialect) InlineForeignKeys() bool { return true }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &numberedParamBuilder{prefix: "?"}
}

func (d *SQLiteDialect) Quote(ident string) string {
	return quoteWith(`"`, ident)
}

func (d *SQLiteDialect) ColumnType(f *schema.Field) string {
	switch f.Type {
	case schema.TypeInt, schema.TypeBigInt, schema.TypeBool:
		return "INTEGER"
	case schema.TypeFloat, schema.TypeDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// AutoIncrementColumn uses a rowid alias, which must carry its own
// PRIMARY KEY clause.
func (d *SQLiteDialect) AutoIncrementColumn(f *schema.Field) (string, bool) {
	return d.Quote(f.Column) + " INTEGER PRIMARY KEY AUTOINCREMENT", true
}

func (d *SQLiteDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) Columns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", d.Quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Bind stores timestamps as RFC 3339 text and JSON as its encoding; the
// driver would otherwise pick its own text format.
func (d *SQLiteDialect) Bind(f *schema.Field, v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	}
	if f.Type == schema.TypeJSON && v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(b)
	}
	return v
}

var _ Dialect = (*SQLiteDialect)(nil)
