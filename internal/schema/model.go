package schema

type Model struct {
	Name       string
	Table      string
	Fields     []*Field
	Relations  []*Relation
	PrimaryKey []string
	Uniques    [][]string // compound unique keys
	Implicit   bool       // join model synthesized for a many-to-many relation

	fieldIndex    map[string]*Field
	relationIndex map[string]*Relation
}

// Field returns the field with the given name, or nil.
func (m *Model) Field(name string) *Field {
	return m.fieldIndex[name]
}

// Relation returns the relation with the given name, or nil.
func (m *Model) Relation(name string) *Relation {
	return m.relationIndex[name]
}

// FieldNames returns all field names in declaration order.
func (m *Model) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// UniqueKeys lists the primary key, every unique field and every compound
// unique key.
func (m *Model) UniqueKeys() [][]string {
	keys := [][]string{m.PrimaryKey}
	for _, f := range m.Fields {
		if f.Unique && !(len(m.PrimaryKey) == 1 && m.PrimaryKey[0] == f.Name) {
			keys = append(keys, []string{f.Name})
		}
	}
	return append(keys, m.Uniques...)
}

// IsUniqueSelector reports whether a lookup on fields can match at most one
// record, i.e. fields cover some unique key entirely.
func (m *Model) IsUniqueSelector(fields []string) bool {
	have := make(map[string]bool, len(fields))
	for _, f := range fields {
		have[f] = true
	}
	for _, key := range m.UniqueKeys() {
		covered := len(key) > 0
		for _, k := range key {
			if !have[k] {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	return false
}
