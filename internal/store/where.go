package store

import "sort"

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEquals     Op = "equals"
	OpNot        Op = "not"
	OpIn         Op = "in"
	OpNotIn      Op = "notIn"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
)

// Ops lists every supported operator.
var Ops = []Op{OpEquals, OpNot, OpIn, OpNotIn, OpLt, OpLte, OpGt, OpGte, OpContains, OpStartsWith, OpEndsWith}

// IsOp reports whether s names a supported operator.
func IsOp(s string) bool {
	for _, op := range Ops {
		if string(op) == s {
			return true
		}
	}
	return false
}

// Cond compares one field. Equals and Not with a nil Value test for null.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Where is a conjunction of Conds and nested groups: every Cond, every And
// group, at least one Or group (if any) and no Not group must match.
type Where struct {
	Conds []Cond
	And   []*Where
	Or    []*Where
	Not   []*Where
}

// Eq builds a conjunction of equality conditions, in field order.
func Eq(values map[string]any) *Where {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	w := &Where{}
	for _, f := range fields {
		w.Conds = append(w.Conds, Cond{Field: f, Op: OpEquals, Value: values[f]})
	}
	return w
}

// AndWhere combines filters, skipping nil ones.
func AndWhere(ws ...*Where) *Where {
	out := &Where{}
	for _, w := range ws {
		if !w.IsEmpty() {
			out.And = append(out.And, w)
		}
	}
	if len(out.And) == 1 {
		return out.And[0]
	}
	return out
}

// IsEmpty reports whether w matches everything.
func (w *Where) IsEmpty() bool {
	return w == nil || (len(w.Conds) == 0 && len(w.And) == 0 && len(w.Or) == 0 && len(w.Not) == 0)
}
