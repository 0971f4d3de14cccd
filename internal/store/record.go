package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// Record is one row or document of a model. Values are keyed by field name,
// never by column name.
type Record struct {
	Model  *schema.Model
	Values map[string]any

	persisted bool
	dirty     map[string]bool
	original  map[string]any // primary key as last loaded or saved
}

// NewRecord returns an unsaved record of model m.
func NewRecord(m *schema.Model) *Record {
	return &Record{
		Model:  m,
		Values: make(map[string]any),
		dirty:  make(map[string]bool),
	}
}

// Loaded wraps values read from a backend. Connectors use it for every
// record they return.
func Loaded(m *schema.Model, values map[string]any) *Record {
	r := &Record{Model: m, Values: values, dirty: make(map[string]bool)}
	r.MarkPersisted()
	return r
}

func (r *Record) Get(field string) any {
	return r.Values[field]
}

// Has reports whether field was assigned, possibly to nil.
func (r *Record) Has(field string) bool {
	_, ok := r.Values[field]
	return ok
}

func (r *Record) Set(field string, v any) {
	r.Values[field] = v
	r.dirty[field] = true
}

func (r *Record) SetFields(values map[string]any) {
	for k, v := range values {
		r.Set(k, v)
	}
}

// IsNew reports whether the record has not been saved yet.
func (r *Record) IsNew() bool {
	return !r.persisted
}

// Dirty lists fields assigned since the last save, sorted.
func (r *Record) Dirty() []string {
	out := make([]string, 0, len(r.dirty))
	for f := range r.dirty {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// MarkPersisted clears the change set and snapshots the primary key so a
// later update can locate the row even if the key itself changed.
func (r *Record) MarkPersisted() {
	r.persisted = true
	r.dirty = make(map[string]bool)
	r.original = r.Key()
}

// Key returns the primary key values.
func (r *Record) Key() map[string]any {
	return r.Pick(r.Model.PrimaryKey)
}

// OriginalKey returns the primary key as persisted, or the current key for a
// new record.
func (r *Record) OriginalKey() map[string]any {
	if r.original != nil {
		return r.original
	}
	return r.Key()
}

// Pick returns the values of the named fields.
func (r *Record) Pick(fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = r.Values[f]
	}
	return out
}

// KeyString renders the primary key for logs and span metadata.
func (r *Record) KeyString() string {
	parts := make([]string, len(r.Model.PrimaryKey))
	for i, f := range r.Model.PrimaryKey {
		parts[i] = fmt.Sprint(r.Values[f])
	}
	return strings.Join(parts, ",")
}

// Clone returns an independent copy sharing no maps with r.
func (r *Record) Clone() *Record {
	c := &Record{
		Model:     r.Model,
		Values:    make(map[string]any, len(r.Values)),
		persisted: r.persisted,
		dirty:     make(map[string]bool, len(r.dirty)),
		original:  r.original,
	}
	for k, v := range r.Values {
		c.Values[k] = v
	}
	for k := range r.dirty {
		c.dirty[k] = true
	}
	return c
}
