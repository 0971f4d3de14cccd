package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// queryRows executes a query and returns each row keyed by field name.
func queryRows(ctx context.Context, q Querier, m *schema.Model, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	fields := make([]*schema.Field, len(columns))
	byColumn := make(map[string]*schema.Field, len(m.Fields))
	for _, f := range m.Fields {
		byColumn[f.Column] = f
	}
	for i, col := range columns {
		fields[i] = byColumn[col]
		if fields[i] == nil {
			return nil, fmt.Errorf("column %s.%s is not a field of %s", m.Table, col, m.Name)
		}
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, f := range fields {
			v, err := normalizeValue(f, values[i])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
			}
			row[f.Name] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// normalizeValue converts what a driver returns into the field's Go type:
// SQLite returns booleans as integers and timestamps as text, MySQL returns
// numbers as bytes over the text protocol, Postgres returns NUMERIC as text.
func normalizeValue(f *schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch f.Type {
	case schema.TypeBool:
		switch val := v.(type) {
		case int64:
			return val != 0, nil
		case string:
			return strconv.ParseBool(val)
		}
	case schema.TypeInt, schema.TypeBigInt:
		if s, ok := v.(string); ok {
			return strconv.ParseInt(s, 10, 64)
		}
	case schema.TypeFloat, schema.TypeDecimal:
		switch val := v.(type) {
		case string:
			return strconv.ParseFloat(val, 64)
		case int64:
			return float64(val), nil
		}
	case schema.TypeDateTime:
		if s, ok := v.(string); ok {
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC(), nil
				}
			}
			return nil, fmt.Errorf("unparseable timestamp %q", s)
		}
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	case schema.TypeJSON:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, err
			}
			return out, nil
		}
	}
	return v, nil
}
