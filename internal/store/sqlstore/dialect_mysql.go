package sqlstore

import (
	"context"
	"encoding/json"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// MySQLDialect implements Dialect for MySQL via go-sql-driver/mysql. It has
// no RETURNING, so inserts read back generated keys with LastInsertId.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string            { return "mysql" }
func (d *MySQLDialect) DriverName() string      { return "mysql" }
func (d *MySQLDialect) SupportsReturning() bool { return false }
func (d *MySQLDialect) InlineForeignKeys() bool { return false }

func (d *MySQLDialect) NewParamBuilder() ParamBuilder {
	return &positionalParamBuilder{}
}

func (d *MySQLDialect) Quote(ident string) string {
	return quoteWith("`", ident)
}

func (d *MySQLDialect) ColumnType(f *schema.Field) string {
	switch f.Type {
	case schema.TypeInt:
		return "INT"
	case schema.TypeBigInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE"
	case schema.TypeDecimal:
		return "DECIMAL(38,10)"
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeDateTime:
		return "DATETIME(6)"
	case schema.TypeJSON:
		return "JSON"
	default:
		// Indexed TEXT needs a prefix length; keys and uniques get VARCHAR.
		if f.ID || f.Unique || f.ForeignKey {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

func (d *MySQLDialect) AutoIncrementColumn(f *schema.Field) (string, bool) {
	return d.Quote(f.Column) + " " + d.ColumnType(f) + " NOT NULL AUTO_INCREMENT", false
}

func (d *MySQLDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
		table,
	).Scan(&n)
	return n > 0, err
}

func (d *MySQLDialect) Columns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`,
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

func (d *MySQLDialect) Bind(f *schema.Field, v any) any {
	if f.Type == schema.TypeJSON && v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(b)
	}
	return v
}

var _ Dialect = (*MySQLDialect)(nil)
