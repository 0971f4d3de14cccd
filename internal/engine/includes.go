package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// includeTree holds requested relations by name; "posts.tags" nests tags
// under posts.
type includeTree map[string]includeTree

func parseIncludes(g *schema.Graph, m *schema.Model, paths []string) (includeTree, error) {
	tree := includeTree{}
	for _, path := range paths {
		node, model := tree, m
		for _, name := range strings.Split(path, ".") {
			rel := model.Relation(name)
			if rel == nil {
				return nil, apperr.InvalidInputf([]string{m.Name, "include"}, "unknown relation %s on model %s", name, model.Name)
			}
			if node[name] == nil {
				node[name] = includeTree{}
			}
			node, model = node[name], g.Model(rel.Target)
		}
	}
	return tree, nil
}

func project(r *store.Record) Object {
	out := make(Object, len(r.Values))
	for k, v := range r.Values {
		out[k] = v
	}
	return out
}

// include projects recs and attaches the requested relations. Each relation
// is loaded with one query per level, not per record.
func (w *writer) include(ctx context.Context, recs []*store.Record, tree includeTree) ([]Object, error) {
	out := make([]Object, len(recs))
	for i, r := range recs {
		out[i] = project(r)
	}
	if len(recs) == 0 || len(tree) == 0 {
		return out, nil
	}

	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)

	m := recs[0].Model
	for _, name := range names {
		rel := m.Relation(name)
		groups, err := w.loadRelated(ctx, recs, rel)
		if err != nil {
			return nil, fmt.Errorf("load include %s: %w", name, err)
		}

		// Project every loaded record once, then hand them out.
		var flat []*store.Record
		for _, g := range groups {
			flat = append(flat, g...)
		}
		objs, err := w.include(ctx, flat, tree[name])
		if err != nil {
			return nil, err
		}

		n := 0
		for i := range recs {
			children := objs[n : n+len(groups[i])]
			n += len(groups[i])
			if rel.IsToMany() {
				out[i][name] = append([]Object{}, children...)
			} else if len(children) > 0 {
				out[i][name] = children[0]
			} else {
				out[i][name] = nil
			}
		}
	}
	return out, nil
}

// loadRelated returns, per parent record, the records associated through rel.
func (w *writer) loadRelated(ctx context.Context, recs []*store.Record, rel *schema.Relation) ([][]*store.Record, error) {
	target := w.graph.Model(rel.Target)
	groups := make([][]*store.Record, len(recs))

	switch o := rel.Ownership.(type) {
	case schema.LocalForeignKey:
		children, err := w.tx.FindMany(ctx, target, keysWhere(target, o.ReferencedFields, tuples(recs, o.LocalFields)))
		if err != nil {
			return nil, err
		}
		byKey := index(children, o.ReferencedFields)
		for i, r := range recs {
			if c := byKey[tupleKey(r, o.LocalFields)]; len(c) > 0 {
				groups[i] = c[:1]
			}
		}

	case schema.ForeignForeignKey:
		_, _, fk, _ := w.graph.ForeignKeyOf(rel)
		children, err := w.tx.FindMany(ctx, target, keysWhere(target, fk.LocalFields, tuples(recs, fk.ReferencedFields)))
		if err != nil {
			return nil, err
		}
		byKey := index(children, fk.LocalFields)
		for i, r := range recs {
			groups[i] = byKey[tupleKey(r, fk.ReferencedFields)]
		}

	case schema.JoinModel:
		through, local, foreign, _ := w.graph.Edges(rel)
		lfk, _ := local.LocalKey()
		ffk, _ := foreign.LocalKey()
		rows, err := w.tx.FindMany(ctx, through, keysWhere(through, lfk.LocalFields, tuples(recs, lfk.ReferencedFields)))
		if err != nil {
			return nil, err
		}
		children, err := w.tx.FindMany(ctx, target, keysWhere(target, ffk.ReferencedFields, tuples(rows, ffk.LocalFields)))
		if err != nil {
			return nil, err
		}
		byKey := index(children, ffk.ReferencedFields)
		bySource := make(map[string][]*store.Record)
		for _, row := range rows {
			src := tupleKey(row, lfk.LocalFields)
			bySource[src] = append(bySource[src], byKey[tupleKey(row, ffk.LocalFields)]...)
		}
		for i, r := range recs {
			groups[i] = bySource[tupleKey(r, lfk.ReferencedFields)]
		}
	}
	return groups, nil
}

// tuples collects the distinct non-null value tuples of fields across recs.
func tuples(recs []*store.Record, fields []string) [][]any {
	seen := make(map[string]bool)
	var out [][]any
	for _, r := range recs {
		t := make([]any, len(fields))
		complete := true
		for i, f := range fields {
			if t[i] = r.Get(f); t[i] == nil {
				complete = false
			}
		}
		k := tupleKey(r, fields)
		if !complete || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

func index(recs []*store.Record, fields []string) map[string][]*store.Record {
	out := make(map[string][]*store.Record, len(recs))
	for _, r := range recs {
		k := tupleKey(r, fields)
		out[k] = append(out[k], r)
	}
	return out
}

func tupleKey(r *store.Record, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%v", r.Get(f))
	}
	return strings.Join(parts, "\x00")
}
