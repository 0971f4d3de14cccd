package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/instrument"
	"github.com/teodevgroup/teo-sub005/internal/mutation"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// writer resolves one request's nested writes inside a single transaction.
type writer struct {
	graph *schema.Graph
	tx    store.Tx
	log   *zap.Logger
}

func (w *writer) create(ctx context.Context, in *mutation.Input, preset map[string]any) (*store.Record, error) {
	r := store.NewRecord(in.Model)
	if err := w.write(ctx, in, r, preset); err != nil {
		return nil, err
	}
	return r, nil
}

func (w *writer) update(ctx context.Context, in *mutation.Input, r *store.Record) error {
	return w.write(ctx, in, r, nil)
}

// write applies in to r. Relations whose key lives on r run first so the
// key is known when r is saved; relations whose key lives elsewhere run
// after the save so r's own key is known.
func (w *writer) write(ctx context.Context, in *mutation.Input, r *store.Record, preset map[string]any) error {
	r.SetFields(in.Fields)
	r.SetFields(preset)
	p := planFor(in)

	var orphans []*store.Record
	for _, ri := range p.before {
		for _, op := range ri.Ops {
			orphan, err := w.run(ctx, ri, op, func(ctx context.Context) (*store.Record, error) {
				return w.before(ctx, r, ri.Relation, op)
			})
			if err != nil {
				return err
			}
			if orphan != nil {
				orphans = append(orphans, orphan)
			}
		}
	}

	if r.IsNew() {
		if err := applyDefaults(r); err != nil {
			return at(apperr.InvalidInput(err.Error()), in.Path)
		}
	}
	if r.IsNew() || len(r.Dirty()) > 0 {
		if err := w.tx.Save(ctx, r); err != nil {
			return at(err, in.Path)
		}
	}

	// Records unlinked by a nested delete go once nothing points at them.
	for _, orphan := range orphans {
		if err := w.delete(ctx, orphan); err != nil {
			return at(err, in.Path)
		}
	}

	for _, ri := range p.after {
		for _, op := range ri.Ops {
			_, err := w.run(ctx, ri, op, func(ctx context.Context) (*store.Record, error) {
				return nil, w.after(ctx, r, ri.Relation, op)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) run(ctx context.Context, ri mutation.RelationInput, op mutation.Operation, fn func(context.Context) (*store.Record, error)) (*store.Record, error) {
	phase := schema.Classify(ri.Relation)
	ctx, span := instrument.Start(ctx, "resolver", string(op.Tag()))
	defer span.End()
	span.SetEntity(ri.Relation.Model, "")
	span.SetMetadata("relation", ri.Relation.Name)
	span.SetMetadata("phase", phase.String())

	w.log.Debug("nested write",
		zap.String("model", ri.Relation.Model),
		zap.String("relation", ri.Relation.Name),
		zap.String("op", string(op.Tag())),
		zap.Stringer("phase", phase),
	)

	orphan, err := fn(ctx)
	if err != nil {
		span.SetStatus("error")
		return nil, at(err, join(ri.Path, string(op.Tag())))
	}
	span.SetStatus("ok")
	return orphan, nil
}

// before runs an operation on a relation whose key r holds. It returns a
// record to delete once r no longer references it.
func (w *writer) before(ctx context.Context, r *store.Record, rel *schema.Relation, op mutation.Operation) (*store.Record, error) {
	fk, _ := rel.LocalKey()
	target := w.graph.Model(rel.Target)

	switch op := op.(type) {
	case mutation.Create:
		child, err := w.create(ctx, op.Data[0], nil)
		if err != nil {
			return nil, err
		}
		pointAt(r, fk, child)

	case mutation.Connect:
		found, err := w.mustFind(ctx, target, op.Where[0])
		if err != nil {
			return nil, err
		}
		pointAt(r, fk, found)

	case mutation.ConnectOrCreate:
		item := op.Items[0]
		rec, err := w.findOrCreate(ctx, target, item.Where, item.Create, nil)
		if err != nil {
			return nil, err
		}
		pointAt(r, fk, rec)

	case mutation.Set:
		if len(op.Where) == 0 {
			clearKey(r, fk)
			return nil, nil
		}
		found, err := w.mustFind(ctx, target, op.Where[0])
		if err != nil {
			return nil, err
		}
		pointAt(r, fk, found)

	case mutation.Disconnect:
		if !op.Current {
			cur, err := w.current(ctx, r, rel)
			if err != nil {
				return nil, err
			}
			if cur == nil || !matches(cur, op.Where[0]) {
				return nil, nil
			}
		}
		clearKey(r, fk)

	case mutation.Delete:
		cur, err := w.current(ctx, r, rel)
		if err != nil {
			return nil, err
		}
		var sel mutation.Selector
		if !op.Current {
			sel = op.Where[0]
		}
		if cur == nil || (sel != nil && !matches(cur, sel)) {
			return nil, notFound(target, sel)
		}
		clearKey(r, fk)
		return cur, nil

	case mutation.Update:
		item := op.Items[0]
		rec, err := w.associated(ctx, r, rel, item.Where)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, notFound(target, item.Where)
		}
		if err := w.update(ctx, item.Data, rec); err != nil {
			return nil, err
		}
		// The update may have changed the referenced fields.
		if ref := referencedBy(r, fk); ref == nil || !matches(rec, ref) {
			pointAt(r, fk, rec)
		}

	case mutation.Upsert:
		item := op.Items[0]
		rec, err := w.associated(ctx, r, rel, item.Where)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			err = w.update(ctx, item.Update, rec)
		} else {
			rec, err = w.create(ctx, item.Create, nil)
		}
		if err != nil {
			return nil, err
		}
		pointAt(r, fk, rec)

	default:
		return nil, fmt.Errorf("%s is not supported on %s.%s", op.Tag(), rel.Model, rel.Name)
	}
	return nil, nil
}

// after runs an operation on a relation whose key lives on the other model
// or on a join model. r is already saved.
func (w *writer) after(ctx context.Context, r *store.Record, rel *schema.Relation, op mutation.Operation) error {
	switch rel.Ownership.(type) {
	case schema.ForeignForeignKey:
		return w.afterForeign(ctx, r, rel, op)
	case schema.JoinModel:
		return w.afterJoin(ctx, r, rel, op)
	}
	return fmt.Errorf("relation %s.%s is not resolved after save", rel.Model, rel.Name)
}

func (w *writer) afterForeign(ctx context.Context, r *store.Record, rel *schema.Relation, op mutation.Operation) error {
	holder, holderRel, fk, _ := w.graph.ForeignKeyOf(rel)
	link := linkValues(r, fk)
	single := !rel.IsToMany()

	attach := func(ctx context.Context, rec *store.Record) error {
		if single {
			if err := w.detach(ctx, r, rel, holderRel, rec); err != nil {
				return err
			}
		}
		return w.setKey(ctx, rec, fk, link)
	}
	createLinked := func(ctx context.Context, in *mutation.Input) (*store.Record, error) {
		if single {
			if err := w.detach(ctx, r, rel, holderRel, nil); err != nil {
				return nil, err
			}
		}
		return w.create(ctx, in, link)
	}

	switch op := op.(type) {
	case mutation.Create:
		for _, in := range op.Data {
			if _, err := createLinked(ctx, in); err != nil {
				return err
			}
		}

	case mutation.CreateMany:
		for _, in := range op.Data {
			if _, err := w.create(ctx, in, link); err != nil {
				return err
			}
		}

	case mutation.Connect:
		for _, sel := range op.Where {
			found, err := w.mustFind(ctx, holder, sel)
			if err != nil {
				return err
			}
			if err := attach(ctx, found); err != nil {
				return err
			}
		}

	case mutation.ConnectOrCreate:
		for _, item := range op.Items {
			found, err := w.tx.FindUnique(ctx, holder, item.Where)
			if err != nil {
				return err
			}
			if found == nil {
				_, err = createLinked(ctx, item.Create)
			} else {
				err = attach(ctx, found)
			}
			if err != nil {
				return err
			}
		}

	case mutation.Set:
		targets, err := w.mustFindAll(ctx, holder, op.Where)
		if err != nil {
			return err
		}
		current, err := w.related(ctx, r, rel)
		if err != nil {
			return err
		}
		for _, cur := range current {
			if !containsRecord(targets, cur) {
				if err := w.setKey(ctx, cur, fk, nil); err != nil {
					return err
				}
			}
		}
		for _, t := range targets {
			if err := w.setKey(ctx, t, fk, link); err != nil {
				return err
			}
		}

	case mutation.Disconnect:
		recs, err := w.selected(ctx, r, rel, op.Where, op.Current, false)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := w.setKey(ctx, rec, fk, nil); err != nil {
				return err
			}
		}

	case mutation.Delete:
		recs, err := w.selected(ctx, r, rel, op.Where, op.Current, true)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := w.delete(ctx, rec); err != nil {
				return err
			}
		}

	default:
		return w.afterCommon(ctx, r, rel, op, func(ctx context.Context, in *mutation.Input) error {
			_, err := createLinked(ctx, in)
			return err
		})
	}
	return nil
}

func (w *writer) afterJoin(ctx context.Context, r *store.Record, rel *schema.Relation, op mutation.Operation) error {
	target := w.graph.Model(rel.Target)

	switch op := op.(type) {
	case mutation.Create:
		return w.createAndLink(ctx, r, rel, op.Data)

	case mutation.CreateMany:
		return w.createAndLink(ctx, r, rel, op.Data)

	case mutation.Connect:
		for _, sel := range op.Where {
			found, err := w.mustFind(ctx, target, sel)
			if err != nil {
				return err
			}
			if err := w.link(ctx, rel, r, found); err != nil {
				return err
			}
		}

	case mutation.ConnectOrCreate:
		for _, item := range op.Items {
			rec, err := w.findOrCreate(ctx, target, item.Where, item.Create, nil)
			if err != nil {
				return err
			}
			if err := w.link(ctx, rel, r, rec); err != nil {
				return err
			}
		}

	case mutation.Set:
		targets, err := w.mustFindAll(ctx, target, op.Where)
		if err != nil {
			return err
		}
		current, err := w.related(ctx, r, rel)
		if err != nil {
			return err
		}
		for _, cur := range current {
			if !containsRecord(targets, cur) {
				if err := w.unlink(ctx, rel, r, cur); err != nil {
					return err
				}
			}
		}
		for _, t := range targets {
			if err := w.link(ctx, rel, r, t); err != nil {
				return err
			}
		}

	case mutation.Disconnect:
		for _, sel := range op.Where {
			rec, err := w.tx.FindUnique(ctx, target, sel)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if err := w.unlink(ctx, rel, r, rec); err != nil {
				return err
			}
		}

	case mutation.Delete:
		recs, err := w.selected(ctx, r, rel, op.Where, false, true)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := w.delete(ctx, rec); err != nil {
				return err
			}
		}

	default:
		return w.afterCommon(ctx, r, rel, op, func(ctx context.Context, in *mutation.Input) error {
			return w.createAndLink(ctx, r, rel, []*mutation.Input{in})
		})
	}
	return nil
}

// afterCommon handles the operations that only address already associated
// records, which work the same whichever side holds the key. createLinked
// builds a new associated record for an upsert miss.
func (w *writer) afterCommon(ctx context.Context, r *store.Record, rel *schema.Relation, op mutation.Operation, createLinked func(context.Context, *mutation.Input) error) error {
	target := w.graph.Model(rel.Target)

	switch op := op.(type) {
	case mutation.DeleteMany:
		for _, where := range op.Where {
			recs, err := w.filterIn(ctx, r, rel, where)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if err := w.delete(ctx, rec); err != nil {
					return err
				}
			}
		}

	case mutation.Update:
		for _, item := range op.Items {
			rec, err := w.associated(ctx, r, rel, item.Where)
			if err != nil {
				return err
			}
			if rec == nil {
				return notFound(target, item.Where)
			}
			if err := w.update(ctx, item.Data, rec); err != nil {
				return err
			}
		}

	case mutation.UpdateMany:
		for _, item := range op.Items {
			recs, err := w.filterIn(ctx, r, rel, item.Where)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if err := w.update(ctx, item.Data, rec); err != nil {
					return err
				}
			}
		}

	case mutation.Upsert:
		for _, item := range op.Items {
			rec, err := w.associated(ctx, r, rel, item.Where)
			if err != nil {
				return err
			}
			if rec != nil {
				err = w.update(ctx, item.Update, rec)
			} else {
				err = createLinked(ctx, item.Create)
			}
			if err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("%s is not supported on %s.%s", op.Tag(), rel.Model, rel.Name)
	}
	return nil
}

// associated finds an associated record by selector, or the current one
// when sel is nil.
func (w *writer) associated(ctx context.Context, r *store.Record, rel *schema.Relation, sel mutation.Selector) (*store.Record, error) {
	if sel == nil {
		return w.current(ctx, r, rel)
	}
	return w.findIn(ctx, r, rel, sel)
}

// selected resolves the associated records a disconnect or delete names.
// With strict set a selector that matches nothing is an error.
func (w *writer) selected(ctx context.Context, r *store.Record, rel *schema.Relation, sels []mutation.Selector, current, strict bool) ([]*store.Record, error) {
	target := w.graph.Model(rel.Target)
	if current {
		cur, err := w.current(ctx, r, rel)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			if strict {
				return nil, notFound(target, nil)
			}
			return nil, nil
		}
		return []*store.Record{cur}, nil
	}
	var out []*store.Record
	for _, sel := range sels {
		rec, err := w.findIn(ctx, r, rel, sel)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			if strict {
				return nil, notFound(target, sel)
			}
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// detach unlinks the record currently held by a to-one foreign relation so
// another can take its place. keep is left alone.
func (w *writer) detach(ctx context.Context, r *store.Record, rel, holderRel *schema.Relation, keep *store.Record) error {
	cur, err := w.current(ctx, r, rel)
	if err != nil || cur == nil {
		return err
	}
	if keep != nil && sameKey(cur, keep) {
		return nil
	}
	if holderRel.IsRequired() {
		return apperr.InvalidInputf(nil, "%s is already connected to a %s whose %s is required", r.Model.Name, cur.Model.Name, holderRel.Name)
	}
	_, _, fk, _ := w.graph.ForeignKeyOf(rel)
	return w.setKey(ctx, cur, fk, nil)
}

// setKey points rec's foreign key at link, or clears it when link is nil.
func (w *writer) setKey(ctx context.Context, rec *store.Record, fk schema.LocalForeignKey, link map[string]any) error {
	for _, f := range fk.LocalFields {
		rec.Set(f, link[f])
	}
	return w.tx.Save(ctx, rec)
}

func (w *writer) createAndLink(ctx context.Context, r *store.Record, rel *schema.Relation, data []*mutation.Input) error {
	for _, in := range data {
		rec, err := w.create(ctx, in, nil)
		if err != nil {
			return err
		}
		if err := w.link(ctx, rel, r, rec); err != nil {
			return err
		}
	}
	return nil
}

// pair builds the join row key linking subject and related through rel.
func (w *writer) pair(rel *schema.Relation, subject, related *store.Record) (*schema.Model, map[string]any) {
	through, local, foreign, _ := w.graph.Edges(rel)
	lfk, _ := local.LocalKey()
	ffk, _ := foreign.LocalKey()
	key := linkValues(subject, lfk)
	for f, v := range linkValues(related, ffk) {
		key[f] = v
	}
	return through, key
}

// link inserts the join row for the pair unless it already exists.
func (w *writer) link(ctx context.Context, rel *schema.Relation, subject, related *store.Record) error {
	through, key := w.pair(rel, subject, related)
	existing, err := w.tx.FindUnique(ctx, through, key)
	if err != nil || existing != nil {
		return err
	}
	row := store.NewRecord(through)
	row.SetFields(key)
	if err := applyDefaults(row); err != nil {
		return apperr.InvalidInput(err.Error())
	}
	return w.tx.Save(ctx, row)
}

func (w *writer) unlink(ctx context.Context, rel *schema.Relation, subject, related *store.Record) error {
	through, key := w.pair(rel, subject, related)
	existing, err := w.tx.FindUnique(ctx, through, key)
	if err != nil || existing == nil {
		return err
	}
	return w.tx.Delete(ctx, existing)
}

func (w *writer) mustFind(ctx context.Context, m *schema.Model, sel mutation.Selector) (*store.Record, error) {
	rec, err := w.tx.FindUnique(ctx, m, sel)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(m, sel)
	}
	return rec, nil
}

func (w *writer) mustFindAll(ctx context.Context, m *schema.Model, sels []mutation.Selector) ([]*store.Record, error) {
	out := make([]*store.Record, 0, len(sels))
	for _, sel := range sels {
		rec, err := w.mustFind(ctx, m, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (w *writer) findOrCreate(ctx context.Context, m *schema.Model, sel mutation.Selector, in *mutation.Input, preset map[string]any) (*store.Record, error) {
	rec, err := w.tx.FindUnique(ctx, m, sel)
	if err != nil || rec != nil {
		return rec, err
	}
	return w.create(ctx, in, preset)
}

func containsRecord(recs []*store.Record, r *store.Record) bool {
	for _, x := range recs {
		if sameKey(x, r) {
			return true
		}
	}
	return false
}

// pointAt sets r's foreign key to the key of rec.
func pointAt(r *store.Record, fk schema.LocalForeignKey, rec *store.Record) {
	for i, f := range fk.LocalFields {
		r.Set(f, rec.Get(fk.ReferencedFields[i]))
	}
}

func clearKey(r *store.Record, fk schema.LocalForeignKey) {
	for _, f := range fk.LocalFields {
		r.Set(f, nil)
	}
}

// applyDefaults fills omitted fields of a new record from their defaults.
// Auto-increment fields are left to the backend.
func applyDefaults(r *store.Record) error {
	for _, f := range r.Model.Fields {
		if r.Has(f.Name) || f.AutoIncrement || !f.HasDefault() {
			continue
		}
		v, err := f.DefaultValue()
		if err != nil {
			return err
		}
		r.Set(f.Name, v)
	}
	return nil
}
