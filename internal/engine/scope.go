package engine

import (
	"context"
	"time"

	"github.com/teodevgroup/teo-sub005/internal/mutation"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// matchNone is a filter no record satisfies.
func matchNone(m *schema.Model) *store.Where {
	return &store.Where{Conds: []store.Cond{{Field: m.PrimaryKey[0], Op: store.OpIn, Value: []any{}}}}
}

// keysWhere matches records of m whose fields equal one of the tuples.
func keysWhere(m *schema.Model, fields []string, tuples [][]any) *store.Where {
	if len(tuples) == 0 {
		return matchNone(m)
	}
	if len(fields) == 1 {
		values := make([]any, len(tuples))
		for i, t := range tuples {
			values[i] = t[0]
		}
		return &store.Where{Conds: []store.Cond{{Field: fields[0], Op: store.OpIn, Value: values}}}
	}
	w := &store.Where{}
	for _, t := range tuples {
		eq := make(map[string]any, len(fields))
		for i, f := range fields {
			eq[f] = t[i]
		}
		w.Or = append(w.Or, store.Eq(eq))
	}
	return w
}

// linkValues maps the holder's key fields onto the referenced values of r.
func linkValues(r *store.Record, fk schema.LocalForeignKey) map[string]any {
	out := make(map[string]any, len(fk.LocalFields))
	for i, f := range fk.LocalFields {
		out[f] = r.Get(fk.ReferencedFields[i])
	}
	return out
}

// referencedBy returns the selector of the record r points at through fk,
// or nil if any key field is null.
func referencedBy(r *store.Record, fk schema.LocalForeignKey) map[string]any {
	out := make(map[string]any, len(fk.LocalFields))
	for i, f := range fk.LocalFields {
		v := r.Get(f)
		if v == nil {
			return nil
		}
		out[fk.ReferencedFields[i]] = v
	}
	return out
}

// scope returns a filter on rel's target matching exactly the records
// currently associated with r.
func (w *writer) scope(ctx context.Context, r *store.Record, rel *schema.Relation) (*store.Where, error) {
	target := w.graph.Model(rel.Target)
	switch o := rel.Ownership.(type) {
	case schema.LocalForeignKey:
		sel := referencedBy(r, o)
		if sel == nil {
			return matchNone(target), nil
		}
		return store.Eq(sel), nil
	case schema.ForeignForeignKey:
		_, _, fk, _ := w.graph.ForeignKeyOf(rel)
		return store.Eq(linkValues(r, fk)), nil
	case schema.JoinModel:
		through, local, foreign, _ := w.graph.Edges(rel)
		lfk, _ := local.LocalKey()
		ffk, _ := foreign.LocalKey()
		rows, err := w.tx.FindMany(ctx, through, store.Eq(linkValues(r, lfk)))
		if err != nil {
			return nil, err
		}
		tuples := make([][]any, len(rows))
		for i, row := range rows {
			t := make([]any, len(ffk.LocalFields))
			for j, f := range ffk.LocalFields {
				t[j] = row.Get(f)
			}
			tuples[i] = t
		}
		return keysWhere(target, ffk.ReferencedFields, tuples), nil
	}
	return matchNone(target), nil
}

// related loads every record associated with r through rel.
func (w *writer) related(ctx context.Context, r *store.Record, rel *schema.Relation) ([]*store.Record, error) {
	scope, err := w.scope(ctx, r, rel)
	if err != nil {
		return nil, err
	}
	return w.tx.FindMany(ctx, w.graph.Model(rel.Target), scope)
}

// current returns the single record associated through a to-one relation.
func (w *writer) current(ctx context.Context, r *store.Record, rel *schema.Relation) (*store.Record, error) {
	recs, err := w.related(ctx, r, rel)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// findIn looks up sel among the records associated with r through rel.
func (w *writer) findIn(ctx context.Context, r *store.Record, rel *schema.Relation, sel mutation.Selector) (*store.Record, error) {
	scope, err := w.scope(ctx, r, rel)
	if err != nil {
		return nil, err
	}
	recs, err := w.tx.FindMany(ctx, w.graph.Model(rel.Target), store.AndWhere(scope, store.Eq(sel)))
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// filterIn returns the associated records matching where.
func (w *writer) filterIn(ctx context.Context, r *store.Record, rel *schema.Relation, where *store.Where) ([]*store.Record, error) {
	scope, err := w.scope(ctx, r, rel)
	if err != nil {
		return nil, err
	}
	return w.tx.FindMany(ctx, w.graph.Model(rel.Target), store.AndWhere(scope, where))
}

// matches reports whether r carries every value of sel.
func matches(r *store.Record, sel mutation.Selector) bool {
	for k, v := range sel {
		if !sameValue(r.Get(k), v) {
			return false
		}
	}
	return true
}

func sameKey(a, b *store.Record) bool {
	return a.Model == b.Model && matches(a, b.Key())
}

func sameValue(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int64:
			return x == float64(y)
		}
		return false
	case nil:
		return b == nil
	}
	return a == b
}
