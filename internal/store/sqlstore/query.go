package sqlstore

import (
	"fmt"
	"strings"

	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// whereBuilder renders a store.Where against one model's columns.
type whereBuilder struct {
	model   *schema.Model
	dialect Dialect
	pb      ParamBuilder
}

// build returns the SQL condition for w, or "" when w matches everything.
func (b *whereBuilder) build(w *store.Where) (string, error) {
	if w.IsEmpty() {
		return "", nil
	}
	var parts []string
	for _, c := range w.Conds {
		clause, err := b.cond(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	for _, sub := range w.And {
		clause, err := b.build(sub)
		if err != nil {
			return "", err
		}
		if clause != "" {
			parts = append(parts, "("+clause+")")
		}
	}
	if len(w.Or) > 0 {
		var ors []string
		for _, sub := range w.Or {
			clause, err := b.build(sub)
			if err != nil {
				return "", err
			}
			if clause == "" {
				clause = "1=1"
			}
			ors = append(ors, "("+clause+")")
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	for _, sub := range w.Not {
		clause, err := b.build(sub)
		if err != nil {
			return "", err
		}
		if clause == "" {
			clause = "1=1"
		}
		parts = append(parts, "NOT ("+clause+")")
	}
	return strings.Join(parts, " AND "), nil
}

func (b *whereBuilder) cond(c store.Cond) (string, error) {
	f := b.model.Field(c.Field)
	if f == nil {
		return "", fmt.Errorf("unknown field %s.%s", b.model.Name, c.Field)
	}
	col := b.dialect.Quote(f.Column)

	switch c.Op {
	case store.OpEquals:
		if c.Value == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + b.pb.Add(b.dialect.Bind(f, c.Value)), nil
	case store.OpNot:
		if c.Value == nil {
			return col + " IS NOT NULL", nil
		}
		return "(" + col + " <> " + b.pb.Add(b.dialect.Bind(f, c.Value)) + " OR " + col + " IS NULL)", nil
	case store.OpIn, store.OpNotIn:
		values, ok := c.Value.([]any)
		if !ok {
			return "", fmt.Errorf("operator %s on %s requires a list", c.Op, c.Field)
		}
		if len(values) == 0 {
			if c.Op == store.OpIn {
				return "1=0", nil // always false
			}
			return "1=1", nil // always true
		}
		phs := make([]string, len(values))
		for i, v := range values {
			phs[i] = b.pb.Add(b.dialect.Bind(f, v))
		}
		kw := " IN "
		if c.Op == store.OpNotIn {
			kw = " NOT IN "
		}
		return col + kw + "(" + strings.Join(phs, ", ") + ")", nil
	case store.OpLt:
		return col + " < " + b.pb.Add(b.dialect.Bind(f, c.Value)), nil
	case store.OpLte:
		return col + " <= " + b.pb.Add(b.dialect.Bind(f, c.Value)), nil
	case store.OpGt:
		return col + " > " + b.pb.Add(b.dialect.Bind(f, c.Value)), nil
	case store.OpGte:
		return col + " >= " + b.pb.Add(b.dialect.Bind(f, c.Value)), nil
	case store.OpContains, store.OpStartsWith, store.OpEndsWith:
		s, ok := c.Value.(string)
		if !ok {
			return "", fmt.Errorf("operator %s on %s requires a string", c.Op, c.Field)
		}
		pattern := escapeLike(s)
		switch c.Op {
		case store.OpContains:
			pattern = "%" + pattern + "%"
		case store.OpStartsWith:
			pattern = pattern + "%"
		default:
			pattern = "%" + pattern
		}
		return col + " LIKE " + b.pb.Add(pattern) + " ESCAPE '!'", nil
	}
	return "", fmt.Errorf("unknown operator %q", c.Op)
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// selectColumns lists every column of m, quoted, in field order.
func selectColumns(d Dialect, m *schema.Model) string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = d.Quote(f.Column)
	}
	return strings.Join(cols, ", ")
}

func orderByKey(d Dialect, m *schema.Model) string {
	cols := make([]string, len(m.PrimaryKey))
	for i, name := range m.PrimaryKey {
		cols[i] = d.Quote(m.Field(name).Column)
	}
	return strings.Join(cols, ", ")
}
