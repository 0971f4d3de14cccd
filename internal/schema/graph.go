package schema

// Graph is the immutable, fully resolved schema. It is produced once by
// Builder.Build and shared read-only by every request.
type Graph struct {
	models []*Model
	index  map[string]*Model
}

// Model returns the model with the given name, or nil.
func (g *Graph) Model(name string) *Model {
	return g.index[name]
}

// Models returns all models, explicit ones in declaration order followed by
// synthesized join models.
func (g *Graph) Models() []*Model {
	return append([]*Model(nil), g.models...)
}

// Opposite returns the model on the other side of rel and the relation
// declared there, which is nil when the relation is one-directional.
func (g *Graph) Opposite(rel *Relation) (*Model, *Relation) {
	target := g.index[rel.Target]
	if target == nil || rel.Opposite == "" {
		return target, nil
	}
	return target, target.Relation(rel.Opposite)
}

// ForeignKeyOf returns the LocalForeignKey that realizes rel together with
// the model holding it. For LocalForeignKey relations that is the relation's
// own model; for ForeignForeignKey relations it is the opposite model.
// JoinModel relations have no single key and return ok=false.
func (g *Graph) ForeignKeyOf(rel *Relation) (holder *Model, holderRel *Relation, fk LocalForeignKey, ok bool) {
	switch o := rel.Ownership.(type) {
	case LocalForeignKey:
		return g.index[rel.Model], rel, o, true
	case ForeignForeignKey:
		target := g.index[rel.Target]
		via := target.Relation(o.Via)
		lfk, _ := via.LocalKey()
		return target, via, lfk, true
	}
	return nil, nil, LocalForeignKey{}, false
}

// Edges resolves the two LocalForeignKey relations on the join model of rel.
func (g *Graph) Edges(rel *Relation) (through *Model, local, foreign *Relation, ok bool) {
	j, isJoin := rel.Join()
	if !isJoin {
		return nil, nil, nil, false
	}
	through = g.index[j.Through]
	return through, through.Relation(j.LocalEdge), through.Relation(j.ForeignEdge), true
}
