package mutation

import (
	"sort"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// ParseWhere parses a general filter on m. A nil or empty document matches
// every record. Field values are either a literal (equality) or an object of
// operators; AND, OR and NOT take an object or a list of objects.
func ParseWhere(m *schema.Model, raw any, path []string) (*store.Where, error) {
	if raw == nil {
		return &store.Where{}, nil
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.InvalidInputf(path, "filter must be an object, got %T", raw)
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := &store.Where{}
	for _, key := range keys {
		val := body[key]
		kp := join(path, key)
		switch key {
		case "AND", "OR", "NOT":
			subs, err := parseGroup(m, val, kp)
			if err != nil {
				return nil, err
			}
			switch key {
			case "AND":
				w.And = append(w.And, subs...)
			case "OR":
				w.Or = append(w.Or, subs...)
			default:
				w.Not = append(w.Not, subs...)
			}
			continue
		}

		f := m.Field(key)
		if f == nil {
			return nil, apperr.InvalidInputf(kp, "unknown field %s on model %s", key, m.Name)
		}
		ops, isOps := val.(map[string]any)
		if !isOps || f.Type == schema.TypeJSON {
			v, err := coerceFilterValue(f, val, kp)
			if err != nil {
				return nil, err
			}
			w.Conds = append(w.Conds, store.Cond{Field: key, Op: store.OpEquals, Value: v})
			continue
		}
		if err := parseFieldOps(f, ops, kp, w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func parseGroup(m *schema.Model, val any, path []string) ([]*store.Where, error) {
	var items []any
	switch v := val.(type) {
	case map[string]any:
		items = []any{v}
	case []any:
		items = v
	default:
		return nil, apperr.InvalidInputf(path, "expected an object or a list of objects, got %T", val)
	}
	out := make([]*store.Where, len(items))
	for i, item := range items {
		sub, err := ParseWhere(m, item, elem(path, i, len(items) > 1 || isList(val)))
		if err != nil {
			return nil, err
		}
		out[i] = sub
	}
	return out, nil
}

func parseFieldOps(f *schema.Field, ops map[string]any, path []string, w *store.Where) error {
	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		val := ops[name]
		op := store.Op(name)
		opPath := join(path, name)
		if !store.IsOp(name) {
			return apperr.InvalidInputf(opPath, "unknown filter operator %s", name)
		}
		switch op {
		case store.OpNot:
			if nested, ok := val.(map[string]any); ok {
				sub := &store.Where{}
				if err := parseFieldOps(f, nested, opPath, sub); err != nil {
					return err
				}
				w.Not = append(w.Not, sub)
				continue
			}
		case store.OpIn, store.OpNotIn:
			list, ok := val.([]any)
			if !ok {
				return apperr.InvalidInputf(opPath, "%s expects a list", name)
			}
			values := make([]any, len(list))
			for i, item := range list {
				v, err := coerceFilterValue(f, item, elem(opPath, i, true))
				if err != nil {
					return err
				}
				values[i] = v
			}
			w.Conds = append(w.Conds, store.Cond{Field: f.Name, Op: op, Value: values})
			continue
		case store.OpContains, store.OpStartsWith, store.OpEndsWith:
			if f.Type != schema.TypeString {
				return apperr.InvalidInputf(opPath, "%s applies to string fields only", name)
			}
		}
		v, err := coerceFilterValue(f, val, opPath)
		if err != nil {
			return err
		}
		w.Conds = append(w.Conds, store.Cond{Field: f.Name, Op: op, Value: v})
	}
	return nil
}

func coerceFilterValue(f *schema.Field, val any, path []string) (any, error) {
	v, err := f.Coerce(val)
	if err != nil {
		return nil, apperr.InvalidInput(err.Error(), path...)
	}
	return v, nil
}
