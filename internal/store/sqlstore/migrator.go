package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate creates every missing table with its keys, unique indexes and
// foreign keys, and adds missing nullable columns to existing tables.
// Foreign keys are inline on SQLite and added once all tables exist
// elsewhere.
func (m *Migrator) Migrate(ctx context.Context, g *schema.Graph) error {
	var created []*schema.Model
	for _, model := range g.Models() {
		exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, model.Table)
		if err != nil {
			return fmt.Errorf("check table exists: %w", err)
		}
		if exists {
			if err := m.alterTable(ctx, model); err != nil {
				return err
			}
			continue
		}
		if err := m.createTable(ctx, g, model); err != nil {
			return err
		}
		created = append(created, model)
	}

	if m.store.Dialect.InlineForeignKeys() {
		return nil
	}
	for _, model := range created {
		for _, stmt := range m.foreignKeys(g, model) {
			if err := m.exec(ctx, stmt); err != nil {
				return fmt.Errorf("add foreign key on %s: %w", model.Table, err)
			}
		}
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, g *schema.Graph, model *schema.Model) error {
	d := m.store.Dialect
	var cols []string
	inlinePK := false
	for _, f := range model.Fields {
		if f.AutoIncrement && len(model.PrimaryKey) == 1 && model.PrimaryKey[0] == f.Name {
			def, inline := d.AutoIncrementColumn(f)
			cols = append(cols, def)
			inlinePK = inline
			continue
		}
		cols = append(cols, m.buildColumnDef(f))
	}
	if !inlinePK {
		cols = append(cols, "PRIMARY KEY ("+m.columnList(model, model.PrimaryKey)+")")
	}
	if d.InlineForeignKeys() {
		cols = append(cols, m.constraints(g, model)...)
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(model.Table), strings.Join(cols, ",\n  "))
	if err := m.exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", model.Table, err)
	}

	if err := m.createIndexes(ctx, model); err != nil {
		return fmt.Errorf("create indexes for %s: %w", model.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, model *schema.Model) error {
	d := m.store.Dialect
	existing, err := d.Columns(ctx, m.store.DB, model.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", model.Table, err)
	}
	for _, f := range model.Fields {
		if existing[f.Column] {
			continue
		}
		// Existing rows have no value, so added columns stay nullable.
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", d.Quote(model.Table), d.Quote(f.Column), d.ColumnType(f))
		if err := m.exec(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", model.Table, f.Column, err)
		}
	}
	return nil
}

func (m *Migrator) buildColumnDef(f *schema.Field) string {
	col := m.store.Dialect.Quote(f.Column) + " " + m.store.Dialect.ColumnType(f)
	if f.IsRequired() {
		col += " NOT NULL"
	}
	return col
}

func (m *Migrator) columnList(model *schema.Model, fields []string) string {
	cols := make([]string, len(fields))
	for i, name := range fields {
		cols[i] = m.store.Dialect.Quote(model.Field(name).Column)
	}
	return strings.Join(cols, ", ")
}

// constraints renders one FOREIGN KEY clause per LocalForeignKey relation.
func (m *Migrator) constraints(g *schema.Graph, model *schema.Model) []string {
	var out []string
	for _, rel := range model.Relations {
		fk, ok := rel.LocalKey()
		if !ok {
			continue
		}
		target := g.Model(rel.Target)
		out = append(out, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			m.store.Dialect.Quote(constraintName("fk", model.Table, rel.Name)),
			m.columnList(model, fk.LocalFields),
			m.store.Dialect.Quote(target.Table),
			m.columnList(target, fk.ReferencedFields),
		))
	}
	return out
}

func (m *Migrator) foreignKeys(g *schema.Graph, model *schema.Model) []string {
	var out []string
	for _, c := range m.constraints(g, model) {
		out = append(out, fmt.Sprintf("ALTER TABLE %s ADD %s", m.store.Dialect.Quote(model.Table), c))
	}
	return out
}

func (m *Migrator) createIndexes(ctx context.Context, model *schema.Model) error {
	d := m.store.Dialect
	for _, key := range model.UniqueKeys()[1:] {
		sql := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
			d.Quote(constraintName("uq", model.Table, strings.Join(key, "_"))),
			d.Quote(model.Table),
			m.columnList(model, key),
		)
		if err := m.exec(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s(%s): %w", model.Table, strings.Join(key, ", "), err)
		}
	}
	return nil
}

func (m *Migrator) exec(ctx context.Context, sql string) error {
	m.store.log.Debug("migrate", zap.String("sql", sql))
	_, err := m.store.DB.ExecContext(ctx, sql)
	return err
}

// constraintName keeps generated names within the 63 byte identifier limit
// of Postgres (MySQL allows 64).
func constraintName(prefix, table, suffix string) string {
	name := prefix + "_" + strings.TrimPrefix(table, "_") + "_" + suffix
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
