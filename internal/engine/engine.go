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

// Object is a record as returned to callers, with any included relations
// nested under their relation names.
type Object = map[string]any

// Engine executes nested writes against a connector. It is safe for
// concurrent use; every call runs in its own transaction.
type Engine struct {
	graph  *schema.Graph
	conn   store.Connector
	parser *mutation.Parser
	log    *zap.Logger

	maxDepth int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMaxDepth bounds the nesting depth of request bodies.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

// New returns an engine writing the models of g through conn.
func New(g *schema.Graph, conn store.Connector, opts ...Option) *Engine {
	e := &Engine{graph: g, conn: conn, log: zap.NewNop(), maxDepth: mutation.DefaultMaxDepth}
	for _, opt := range opts {
		opt(e)
	}
	e.parser = mutation.NewParser(g, e.maxDepth)
	return e
}

// Graph returns the schema the engine was built with.
func (e *Engine) Graph() *schema.Graph {
	return e.graph
}

// Create inserts a record of model together with every nested write in data.
func (e *Engine) Create(ctx context.Context, model string, data map[string]any) (Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	in, err := e.parser.ParseCreate(m, data)
	if err != nil {
		return nil, err
	}

	var out Object
	err = e.inTx(ctx, "create", m, func(ctx context.Context, w *writer) error {
		r, err := w.create(ctx, in, nil)
		if err != nil {
			return err
		}
		out, err = w.reload(ctx, r)
		return err
	})
	return out, err
}

// Update patches the record selected by where.
func (e *Engine) Update(ctx context.Context, model string, where, data map[string]any) (Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	sel, err := e.parser.ParseSelector(m, where)
	if err != nil {
		return nil, err
	}
	in, err := e.parser.ParseUpdate(m, data)
	if err != nil {
		return nil, err
	}

	var out Object
	err = e.inTx(ctx, "update", m, func(ctx context.Context, w *writer) error {
		r, err := w.mustFind(ctx, m, sel)
		if err != nil {
			return at(err, []string{m.Name, "where"})
		}
		if err := w.update(ctx, in, r); err != nil {
			return err
		}
		out, err = w.reload(ctx, r)
		return err
	})
	return out, err
}

// Upsert updates the record selected by where, or creates one from create
// when none matches.
func (e *Engine) Upsert(ctx context.Context, model string, where, create, update map[string]any) (Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	sel, err := e.parser.ParseSelector(m, where)
	if err != nil {
		return nil, err
	}
	createIn, err := e.parser.ParseCreate(m, create)
	if err != nil {
		return nil, err
	}
	updateIn, err := e.parser.ParseUpdate(m, update)
	if err != nil {
		return nil, err
	}

	var out Object
	err = e.inTx(ctx, "upsert", m, func(ctx context.Context, w *writer) error {
		r, err := w.tx.FindUnique(ctx, m, sel)
		if err != nil {
			return err
		}
		if r != nil {
			err = w.update(ctx, updateIn, r)
		} else {
			r, err = w.create(ctx, createIn, nil)
		}
		if err != nil {
			return err
		}
		out, err = w.reload(ctx, r)
		return err
	})
	return out, err
}

// Delete removes the record selected by where and returns it as it was.
func (e *Engine) Delete(ctx context.Context, model string, where map[string]any) (Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	sel, err := e.parser.ParseSelector(m, where)
	if err != nil {
		return nil, err
	}

	var out Object
	err = e.inTx(ctx, "delete", m, func(ctx context.Context, w *writer) error {
		r, err := w.mustFind(ctx, m, sel)
		if err != nil {
			return at(err, []string{m.Name, "where"})
		}
		if err := w.delete(ctx, r); err != nil {
			return at(err, []string{m.Name})
		}
		out = project(r)
		return nil
	})
	return out, err
}

// FindUnique returns the record selected by where, or nil.
func (e *Engine) FindUnique(ctx context.Context, model string, where map[string]any, include []string) (Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	sel, err := e.parser.ParseSelector(m, where)
	if err != nil {
		return nil, err
	}
	tree, err := parseIncludes(e.graph, m, include)
	if err != nil {
		return nil, err
	}

	var out Object
	err = e.read(ctx, "findUnique", m, func(ctx context.Context, w *writer) error {
		r, err := w.tx.FindUnique(ctx, m, sel)
		if err != nil || r == nil {
			return err
		}
		objs, err := w.include(ctx, []*store.Record{r}, tree)
		if err != nil {
			return err
		}
		out = objs[0]
		return nil
	})
	return out, err
}

// FindMany returns every record matching the filter document where, ordered
// by primary key.
func (e *Engine) FindMany(ctx context.Context, model string, where map[string]any, include []string) ([]Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	var raw any
	if where != nil {
		raw = where
	}
	filter, err := mutation.ParseWhere(m, raw, []string{m.Name, "where"})
	if err != nil {
		return nil, err
	}
	tree, err := parseIncludes(e.graph, m, include)
	if err != nil {
		return nil, err
	}

	out := []Object{}
	err = e.read(ctx, "findMany", m, func(ctx context.Context, w *writer) error {
		recs, err := w.tx.FindMany(ctx, m, filter)
		if err != nil {
			return err
		}
		objs, err := w.include(ctx, recs, tree)
		if err != nil {
			return err
		}
		out = objs
		return nil
	})
	return out, err
}

func (e *Engine) model(name string) (*schema.Model, error) {
	m := e.graph.Model(name)
	if m == nil {
		return nil, apperr.InvalidInputf(nil, "unknown model %s", name)
	}
	return m, nil
}

// inTx runs fn in one transaction. Any error rolls back every write fn made.
func (e *Engine) inTx(ctx context.Context, action string, m *schema.Model, fn func(context.Context, *writer) error) (err error) {
	ctx = instrument.EnsureTraceID(ctx)
	ctx, span := instrument.Start(ctx, "engine", action)
	defer span.End()
	span.SetEntity(m.Name, "")

	tx, err := e.conn.Begin(ctx)
	if err != nil {
		span.SetStatus("error")
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		span.SetStatus("error")
		if rbErr := tx.Rollback(); rbErr != nil {
			e.log.Error("rollback failed", zap.String("model", m.Name), zap.Error(rbErr))
		}
		e.log.Warn("write rolled back",
			zap.String("action", action),
			zap.String("model", m.Name),
			zap.String("trace_id", instrument.GetTraceID(ctx)),
			zap.Error(err),
		)
	}()

	w := &writer{graph: e.graph, tx: tx, log: e.log}
	if err = fn(ctx, w); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	span.SetStatus("ok")
	return nil
}

// read runs fn in a transaction that is always rolled back.
func (e *Engine) read(ctx context.Context, action string, m *schema.Model, fn func(context.Context, *writer) error) error {
	ctx, span := instrument.Start(ctx, "engine", action)
	defer span.End()
	span.SetEntity(m.Name, "")

	tx, err := e.conn.Begin(ctx)
	if err != nil {
		span.SetStatus("error")
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(ctx, &writer{graph: e.graph, tx: tx, log: e.log}); err != nil {
		span.SetStatus("error")
		return err
	}
	span.SetStatus("ok")
	return nil
}

// reload reads r back so the result carries backend-generated values.
func (w *writer) reload(ctx context.Context, r *store.Record) (Object, error) {
	fresh, err := w.tx.FindUnique(ctx, r.Model, r.Key())
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, notFound(r.Model, r.Key())
	}
	return project(fresh), nil
}
