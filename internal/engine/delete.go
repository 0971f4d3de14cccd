package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// delete removes rec after releasing everything that references it. Join
// rows go first. Records holding an optional key to rec have it cleared; a
// required key blocks the delete. Nothing cascades.
func (w *writer) delete(ctx context.Context, rec *store.Record) error {
	if err := w.releaseJoinRows(ctx, rec); err != nil {
		return err
	}

	for _, m := range w.graph.Models() {
		for _, rel := range m.Relations {
			fk, ok := rel.LocalKey()
			if !ok || rel.Target != rec.Model.Name {
				continue
			}
			deps, err := w.tx.FindMany(ctx, m, store.Eq(linkValues(rec, fk)))
			if err != nil {
				return err
			}
			for _, dep := range deps {
				if sameKey(dep, rec) {
					continue
				}
				if rel.IsRequired() {
					return apperr.InvalidInputf(nil, "cannot delete %s: %s.%s still references it and is required", rec.Model.Name, m.Name, rel.Name)
				}
				if err := w.setKey(ctx, dep, fk, nil); err != nil {
					return err
				}
			}
		}
	}

	w.log.Debug("delete record", zap.String("model", rec.Model.Name), zap.String("key", rec.KeyString()))
	return w.tx.Delete(ctx, rec)
}

// releaseJoinRows deletes the join rows whose edge points at rec, on every
// join model of the graph, whether or not rec's model declares the relation.
func (w *writer) releaseJoinRows(ctx context.Context, rec *store.Record) error {
	seen := map[string]bool{}
	for _, m := range w.graph.Models() {
		for _, rel := range m.Relations {
			if _, ok := rel.Join(); !ok {
				continue
			}
			through, local, foreign, _ := w.graph.Edges(rel)
			for _, edge := range []*schema.Relation{local, foreign} {
				key := through.Name + "." + edge.Name
				if edge.Target != rec.Model.Name || seen[key] {
					continue
				}
				seen[key] = true
				fk, _ := edge.LocalKey()
				rows, err := w.tx.FindMany(ctx, through, store.Eq(linkValues(rec, fk)))
				if err != nil {
					return err
				}
				for _, row := range rows {
					if err := w.tx.Delete(ctx, row); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
