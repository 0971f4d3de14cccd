package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// Builder collects model definitions and turns them into an immutable Graph.
// A Builder is single use: after Build it refuses further definitions.
type Builder struct {
	defs  []ModelDef
	built bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends model definitions.
func (b *Builder) Add(defs ...ModelDef) *Builder {
	b.defs = append(b.defs, defs...)
	return b
}

type buildState struct {
	graph    *Graph
	pending  map[*Relation]RelationDef
	order    []*Relation
	implicit map[string]*Model
	errs     []error
}

func (s *buildState) fail(format string, args ...any) {
	s.errs = append(s.errs, fmt.Errorf(format, args...))
}

func (s *buildState) err() error {
	if len(s.errs) == 0 {
		return nil
	}
	return errors.Join(s.errs...)
}

// Build resolves every relation and returns the frozen graph, or every
// inconsistency found.
func (b *Builder) Build() (*Graph, error) {
	if b.built {
		return nil, errors.New("schema: builder already built")
	}
	b.built = true

	s := &buildState{
		graph:    &Graph{index: make(map[string]*Model)},
		pending:  make(map[*Relation]RelationDef),
		implicit: make(map[string]*Model),
	}

	for _, def := range b.defs {
		s.addModel(def)
	}
	if err := s.err(); err != nil {
		return nil, err
	}

	for _, def := range b.defs {
		s.addRelations(def)
	}
	if err := s.err(); err != nil {
		return nil, err
	}

	// Ownership is resolved in dependency order: key-holding relations first,
	// explicit join models (which refer to them) next, inferred ones last.
	for _, rel := range s.order {
		if def := s.pending[rel]; len(def.Fields) > 0 || len(def.References) > 0 {
			s.resolveLocalKey(rel, def)
		}
	}
	if err := s.err(); err != nil {
		return nil, err
	}
	for _, rel := range s.order {
		if def := s.pending[rel]; def.Through != "" {
			s.resolveThrough(rel, def)
		}
	}
	if err := s.err(); err != nil {
		return nil, err
	}
	for _, rel := range s.order {
		if rel.Ownership == nil {
			s.resolveInferred(rel, s.pending[rel])
		}
	}
	if err := s.err(); err != nil {
		return nil, err
	}
	s.linkOpposites()
	s.appendImplicit()
	if err := s.err(); err != nil {
		return nil, err
	}

	if _, err := s.graph.SeedOrder(); err != nil {
		return nil, err
	}
	return s.graph, nil
}

func (s *buildState) addModel(def ModelDef) {
	if def.Name == "" {
		s.fail("model with empty name")
		return
	}
	if s.graph.index[def.Name] != nil {
		s.fail("model %s declared twice", def.Name)
		return
	}
	m := &Model{
		Name:          def.Name,
		Table:         def.Table,
		fieldIndex:    make(map[string]*Field),
		relationIndex: make(map[string]*Relation),
	}
	if m.Table == "" {
		m.Table = inflect.Underscore(inflect.Pluralize(def.Name))
	}

	for _, fd := range def.Fields {
		if m.fieldIndex[fd.Name] != nil {
			s.fail("%s.%s: field declared twice", def.Name, fd.Name)
			continue
		}
		f := &Field{
			Name:          fd.Name,
			Column:        fd.Column,
			Type:          FieldType(fd.Type),
			Optional:      fd.Optional,
			ID:            fd.ID,
			AutoIncrement: fd.AutoIncrement,
			Unique:        fd.Unique,
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if !f.Type.valid() {
			s.fail("%s.%s: unknown field type %q", def.Name, fd.Name, fd.Type)
			continue
		}
		if f.AutoIncrement && !f.Type.IsInteger() {
			s.fail("%s.%s: autoincrement requires an integer type", def.Name, fd.Name)
		}
		if src, ok := isDefaultExpr(fd.Default); ok {
			program, err := compileDefault(src)
			if err != nil {
				s.fail("%s.%s: default expression: %v", def.Name, fd.Name, err)
			}
			f.program = program
		} else if fd.Default != nil {
			if _, err := f.Coerce(fd.Default); err != nil {
				s.fail("%s.%s: default: %v", def.Name, fd.Name, err)
			}
			f.Default = fd.Default
		}
		m.Fields = append(m.Fields, f)
		m.fieldIndex[f.Name] = f
	}

	m.PrimaryKey = def.PrimaryKey
	if len(m.PrimaryKey) == 0 {
		for _, f := range m.Fields {
			if f.ID {
				m.PrimaryKey = append(m.PrimaryKey, f.Name)
			}
		}
	}
	if len(m.PrimaryKey) == 0 {
		s.fail("model %s has no primary key", def.Name)
	}
	for _, name := range m.PrimaryKey {
		f := m.fieldIndex[name]
		if f == nil {
			s.fail("model %s: primary key field %s does not exist", def.Name, name)
			continue
		}
		f.ID = true
		if f.Optional {
			s.fail("model %s: primary key field %s cannot be optional", def.Name, name)
		}
	}
	for _, key := range def.Unique {
		for _, name := range key {
			if m.fieldIndex[name] == nil {
				s.fail("model %s: unique key field %s does not exist", def.Name, name)
			}
		}
		m.Uniques = append(m.Uniques, key)
	}

	s.graph.models = append(s.graph.models, m)
	s.graph.index[m.Name] = m
}

func (s *buildState) addRelations(def ModelDef) {
	m := s.graph.index[def.Name]
	for _, rd := range def.Relations {
		if m.relationIndex[rd.Name] != nil || m.fieldIndex[rd.Name] != nil {
			s.fail("%s.%s: name already used by a field or relation", m.Name, rd.Name)
			continue
		}
		if s.graph.index[rd.Model] == nil {
			s.fail("%s.%s: unknown model %s", m.Name, rd.Name, rd.Model)
			continue
		}
		rel := &Relation{
			Name:        rd.Name,
			Model:       m.Name,
			Target:      rd.Model,
			Cardinality: ToOne,
			Optionality: Required,
		}
		if rd.Many {
			rel.Cardinality = ToMany
			rel.Optionality = Optional
		} else if rd.Optional {
			rel.Optionality = Optional
		}
		m.Relations = append(m.Relations, rel)
		m.relationIndex[rel.Name] = rel
		s.pending[rel] = rd
		s.order = append(s.order, rel)
	}
}

func (s *buildState) resolveLocalKey(rel *Relation, def RelationDef) {
	where := rel.Model + "." + rel.Name
	if def.Through != "" {
		s.fail("%s: fields/references and through are mutually exclusive", where)
		return
	}
	if rel.IsToMany() {
		s.fail("%s: a to-many relation cannot hold foreign key fields", where)
		return
	}
	if len(def.Fields) == 0 || len(def.Fields) != len(def.References) {
		s.fail("%s: fields and references must be non-empty and of equal length", where)
		return
	}
	m := s.graph.index[rel.Model]
	target := s.graph.index[rel.Target]
	for i, name := range def.Fields {
		local := m.Field(name)
		ref := target.Field(def.References[i])
		if local == nil {
			s.fail("%s: unknown field %s", where, name)
			continue
		}
		if ref == nil {
			s.fail("%s: unknown referenced field %s.%s", where, target.Name, def.References[i])
			continue
		}
		if local.Type != ref.Type && !(local.Type.IsInteger() && ref.Type.IsInteger()) {
			s.fail("%s: field %s (%s) cannot reference %s.%s (%s)", where, name, local.Type, target.Name, ref.Name, ref.Type)
		}
		if local.Optional != (rel.Optionality == Optional) {
			s.fail("%s: optionality of the relation (%s) conflicts with field %s", where, rel.Optionality, name)
		}
		local.ForeignKey = true
	}
	if !target.IsUniqueSelector(def.References) {
		s.fail("%s: referenced fields (%s) are not a unique key of %s", where, strings.Join(def.References, ", "), target.Name)
	}
	rel.Ownership = LocalForeignKey{
		LocalFields:      append([]string{}, def.Fields...),
		ReferencedFields: append([]string{}, def.References...),
	}
}

func (s *buildState) resolveThrough(rel *Relation, def RelationDef) {
	where := rel.Model + "." + rel.Name
	if !rel.IsToMany() {
		s.fail("%s: a join model relation must be to-many", where)
		return
	}
	through := s.graph.index[def.Through]
	if through == nil {
		s.fail("%s: unknown join model %s", where, def.Through)
		return
	}
	local := through.Relation(def.Local)
	foreign := through.Relation(def.Foreign)
	if local == nil || foreign == nil {
		s.fail("%s: join model %s must declare relations %q and %q", where, through.Name, def.Local, def.Foreign)
		return
	}
	lfk, ok1 := local.LocalKey()
	ffk, ok2 := foreign.LocalKey()
	if !ok1 || !ok2 {
		s.fail("%s: join edges %s and %s must hold foreign keys", where, def.Local, def.Foreign)
		return
	}
	if local.Target != rel.Model || foreign.Target != rel.Target {
		s.fail("%s: join edges of %s point at %s and %s, expected %s and %s",
			where, through.Name, local.Target, foreign.Target, rel.Model, rel.Target)
		return
	}
	pair := append(append([]string{}, lfk.LocalFields...), ffk.LocalFields...)
	if !through.IsUniqueSelector(pair) {
		s.fail("%s: join model %s needs a unique key on (%s)", where, through.Name, strings.Join(pair, ", "))
		return
	}
	rel.Ownership = JoinModel{Through: through.Name, LocalEdge: local.Name, ForeignEdge: foreign.Name}
}

// oppositeCandidates lists relations on rel's target that may be its other
// half, honouring explicit `opposite` names on either side.
func (s *buildState) oppositeCandidates(rel *Relation) []*Relation {
	def := s.pending[rel]
	target := s.graph.index[rel.Target]
	var out []*Relation
	for _, cand := range target.Relations {
		if cand == rel || cand.Target != rel.Model {
			continue
		}
		if def.Opposite != "" && cand.Name != def.Opposite {
			continue
		}
		if other := s.pending[cand].Opposite; other != "" && other != rel.Name {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func (s *buildState) resolveInferred(rel *Relation, def RelationDef) {
	where := rel.Model + "." + rel.Name
	cands := s.oppositeCandidates(rel)
	// A key-less relation can only pair with something that decides ownership.
	switch len(cands) {
	case 0:
		s.fail("%s: no opposite relation on %s; declare fields/references or through", where, rel.Target)
		return
	case 1:
	default:
		names := make([]string, len(cands))
		for i, c := range cands {
			names[i] = c.Name
		}
		s.fail("%s: ambiguous opposite relation on %s (%s); set opposite", where, rel.Target, strings.Join(names, ", "))
		return
	}
	opp := cands[0]

	switch o := opp.Ownership.(type) {
	case LocalForeignKey:
		if !rel.IsToMany() {
			holder := s.graph.index[opp.Model]
			if !holder.IsUniqueSelector(o.LocalFields) {
				s.fail("%s: one-to-one key %s.(%s) must be unique", where, holder.Name, strings.Join(o.LocalFields, ", "))
				return
			}
		}
		rel.Ownership = ForeignForeignKey{Via: opp.Name}
		rel.Opposite = opp.Name
	case JoinModel:
		if !rel.IsToMany() {
			s.fail("%s: opposite %s uses join model %s, so this side must be to-many", where, opp.Name, o.Through)
			return
		}
		rel.Ownership = JoinModel{Through: o.Through, LocalEdge: o.ForeignEdge, ForeignEdge: o.LocalEdge}
		rel.Opposite = opp.Name
	case nil:
		if !rel.IsToMany() || !opp.IsToMany() {
			s.fail("%s: neither %s nor %s.%s declares fields/references", where, where, opp.Model, opp.Name)
			return
		}
		s.implicitJoin(rel, opp)
	default:
		s.fail("%s: conflicting ownership with %s.%s", where, opp.Model, opp.Name)
	}
}

// implicitJoin synthesizes the join model for a key-less many-to-many pair
// and assigns JoinModel ownership to both sides.
func (s *buildState) implicitJoin(a, b *Relation) {
	ma, mb := s.graph.index[a.Model], s.graph.index[b.Model]
	ra, rb := a, b
	var name, edgeA, edgeB string
	if ma == mb {
		if rb.Name < ra.Name {
			ra, rb = rb, ra
		}
		name = "_" + ma.Name + "_" + ra.Name + "To" + rb.Name
		edgeA, edgeB = "a", "b"
	} else {
		if mb.Name < ma.Name {
			ra, rb = rb, ra
			ma, mb = mb, ma
		}
		name = "_" + ma.Name + "To" + mb.Name
		edgeA, edgeB = lowerFirst(ma.Name), lowerFirst(mb.Name)
	}
	if s.implicit[name] != nil {
		s.fail("%s.%s: implicit join model %s generated twice", a.Model, a.Name, name)
		return
	}

	through := &Model{
		Name:          name,
		Table:         name,
		Implicit:      true,
		fieldIndex:    make(map[string]*Field),
		relationIndex: make(map[string]*Relation),
	}
	s.addEdge(through, edgeA, ma)
	s.addEdge(through, edgeB, mb)
	s.implicit[name] = through

	ra.Ownership = JoinModel{Through: name, LocalEdge: edgeA, ForeignEdge: edgeB}
	rb.Ownership = JoinModel{Through: name, LocalEdge: edgeB, ForeignEdge: edgeA}
	ra.Opposite, rb.Opposite = rb.Name, ra.Name
}

func (s *buildState) addEdge(through *Model, edge string, target *Model) {
	var locals []string
	for _, pk := range target.PrimaryKey {
		ref := target.Field(pk)
		f := &Field{
			Name:       edge + upperFirst(pk),
			Column:     edge + upperFirst(pk),
			Type:       ref.Type,
			ID:         true,
			ForeignKey: true,
		}
		through.Fields = append(through.Fields, f)
		through.fieldIndex[f.Name] = f
		through.PrimaryKey = append(through.PrimaryKey, f.Name)
		locals = append(locals, f.Name)
	}
	rel := &Relation{
		Name:        edge,
		Model:       through.Name,
		Target:      target.Name,
		Cardinality: ToOne,
		Optionality: Required,
		Ownership: LocalForeignKey{
			LocalFields:      locals,
			ReferencedFields: append([]string{}, target.PrimaryKey...),
		},
	}
	through.Relations = append(through.Relations, rel)
	through.relationIndex[rel.Name] = rel
}

// linkOpposites fills Relation.Opposite on the key-holding side of every
// ForeignForeignKey pair and on mirrored explicit join relations.
func (s *buildState) linkOpposites() {
	for _, rel := range s.order {
		switch o := rel.Ownership.(type) {
		case ForeignForeignKey:
			holder := s.graph.index[rel.Target].Relation(o.Via)
			if holder.Opposite != "" && holder.Opposite != rel.Name {
				s.fail("%s.%s: %s.%s is already paired with %s",
					rel.Model, rel.Name, holder.Model, holder.Name, holder.Opposite)
				continue
			}
			holder.Opposite = rel.Name
		case JoinModel:
			if rel.Opposite != "" {
				continue
			}
			for _, cand := range s.oppositeCandidates(rel) {
				if j, ok := cand.Join(); ok && j.Through == o.Through && j.LocalEdge == o.ForeignEdge {
					rel.Opposite, cand.Opposite = cand.Name, rel.Name
				}
			}
		}
	}
}

func (s *buildState) appendImplicit() {
	names := make([]string, 0, len(s.implicit))
	for name := range s.implicit {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s.graph.index[name] != nil {
			s.fail("implicit join model %s collides with a declared model", name)
			continue
		}
		s.graph.models = append(s.graph.models, s.implicit[name])
		s.graph.index[name] = s.implicit[name]
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
