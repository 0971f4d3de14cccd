package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// Tx implements store.Tx on a database/sql transaction.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
	log     *zap.Logger
}

func (t *Tx) Commit() error {
	return classify(t.tx.Commit())
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

func (t *Tx) Save(ctx context.Context, r *store.Record) error {
	if r.IsNew() {
		return t.insert(ctx, r)
	}
	return t.update(ctx, r)
}

func (t *Tx) insert(ctx context.Context, r *store.Record) error {
	m := r.Model
	pb := t.dialect.NewParamBuilder()
	var cols, phs []string
	for _, f := range m.Fields {
		v, ok := r.Values[f.Name]
		if !ok || (v == nil && f.AutoIncrement) {
			continue
		}
		cols = append(cols, t.dialect.Quote(f.Column))
		phs = append(phs, pb.Add(t.dialect.Bind(f, v)))
	}

	table := t.dialect.Quote(m.Table)
	var q string
	switch {
	case len(cols) > 0:
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	case t.dialect.Name() == "mysql":
		q = fmt.Sprintf("INSERT INTO %s () VALUES ()", table)
	default:
		q = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)
	}

	if t.dialect.SupportsReturning() {
		q += " RETURNING " + selectColumns(t.dialect, m)
		rows, err := t.query(ctx, m, q, pb.Params()...)
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			return apperr.UnknownDatabaseWriteError(fmt.Errorf("insert into %s returned %d rows", m.Table, len(rows)))
		}
		r.Values = rows[0]
		r.MarkPersisted()
		return nil
	}

	res, err := t.exec(ctx, q, pb.Params()...)
	if err != nil {
		return err
	}
	for _, f := range m.Fields {
		if f.AutoIncrement && r.Values[f.Name] == nil {
			id, err := res.LastInsertId()
			if err != nil {
				return classify(err)
			}
			r.Values[f.Name] = id
		}
	}
	loaded, err := t.FindUnique(ctx, m, r.Key())
	if err != nil {
		return err
	}
	if loaded == nil {
		return apperr.UnknownDatabaseWriteError(fmt.Errorf("inserted %s row not found", m.Name))
	}
	r.Values = loaded.Values
	r.MarkPersisted()
	return nil
}

func (t *Tx) update(ctx context.Context, r *store.Record) error {
	m := r.Model
	dirty := r.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	pb := t.dialect.NewParamBuilder()
	sets := make([]string, 0, len(dirty))
	for _, name := range dirty {
		f := m.Field(name)
		if f == nil {
			return fmt.Errorf("unknown field %s.%s", m.Name, name)
		}
		sets = append(sets, t.dialect.Quote(f.Column)+" = "+pb.Add(t.dialect.Bind(f, r.Values[name])))
	}
	wb := &whereBuilder{model: m, dialect: t.dialect, pb: pb}
	cond, err := wb.build(store.Eq(r.OriginalKey()))
	if err != nil {
		return err
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.dialect.Quote(m.Table), strings.Join(sets, ", "), cond)
	res, err := t.exec(ctx, q, pb.Params()...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 && t.dialect.Name() != "mysql" {
		// MySQL reports 0 for rows whose values did not change.
		return apperr.ObjectNotFound(m.Name, r.OriginalKey())
	}
	r.MarkPersisted()
	return nil
}

func (t *Tx) Delete(ctx context.Context, r *store.Record) error {
	m := r.Model
	pb := t.dialect.NewParamBuilder()
	wb := &whereBuilder{model: m, dialect: t.dialect, pb: pb}
	cond, err := wb.build(store.Eq(r.OriginalKey()))
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", t.dialect.Quote(m.Table), cond)
	res, err := t.exec(ctx, q, pb.Params()...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ObjectNotFound(m.Name, r.OriginalKey())
	}
	return nil
}

func (t *Tx) FindUnique(ctx context.Context, m *schema.Model, selector map[string]any) (*store.Record, error) {
	rows, err := t.selectWhere(ctx, m, store.Eq(selector), 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return store.Loaded(m, rows[0]), nil
}

func (t *Tx) FindMany(ctx context.Context, m *schema.Model, where *store.Where) ([]*store.Record, error) {
	rows, err := t.selectWhere(ctx, m, where, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Record, len(rows))
	for i, row := range rows {
		out[i] = store.Loaded(m, row)
	}
	return out, nil
}

func (t *Tx) selectWhere(ctx context.Context, m *schema.Model, where *store.Where, limit int) ([]map[string]any, error) {
	pb := t.dialect.NewParamBuilder()
	wb := &whereBuilder{model: m, dialect: t.dialect, pb: pb}
	cond, err := wb.build(where)
	if err != nil {
		return nil, apperr.InvalidInput(err.Error())
	}
	q := fmt.Sprintf("SELECT %s FROM %s", selectColumns(t.dialect, m), t.dialect.Quote(m.Table))
	if cond != "" {
		q += " WHERE " + cond
	}
	q += " ORDER BY " + orderByKey(t.dialect, m)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return t.query(ctx, m, q, pb.Params()...)
}

func (t *Tx) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	t.log.Debug("exec", zap.String("sql", q), zap.Int("args", len(args)))
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (t *Tx) query(ctx context.Context, m *schema.Model, q string, args ...any) ([]map[string]any, error) {
	t.log.Debug("query", zap.String("sql", q), zap.Int("args", len(args)))
	rows, err := queryRows(ctx, t.tx, m, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

var _ store.Tx = (*Tx)(nil)
