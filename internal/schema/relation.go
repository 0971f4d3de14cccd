package schema

type Cardinality int

const (
	ToOne Cardinality = iota
	ToMany
)

func (c Cardinality) String() string {
	if c == ToMany {
		return "ToMany"
	}
	return "ToOne"
}

type Optionality int

const (
	Required Optionality = iota
	Optional
)

func (o Optionality) String() string {
	if o == Optional {
		return "Optional"
	}
	return "Required"
}

// Ownership says which side physically carries the foreign key. It is a
// closed set: LocalForeignKey, ForeignForeignKey, JoinModel.
type Ownership interface {
	ownership()
}

// LocalForeignKey: this model holds the key scalars (belongs-to).
type LocalForeignKey struct {
	LocalFields      []string
	ReferencedFields []string
}

// ForeignForeignKey: the opposite model holds the key through its relation Via.
type ForeignForeignKey struct {
	Via string
}

// JoinModel: a third model holds both keys. LocalEdge and ForeignEdge name
// LocalForeignKey relations on Through pointing at this model and at the
// opposite model respectively.
type JoinModel struct {
	Through     string
	LocalEdge   string
	ForeignEdge string
}

func (LocalForeignKey) ownership()   {}
func (ForeignForeignKey) ownership() {}
func (JoinModel) ownership()         {}

type Relation struct {
	Name        string
	Model       string // the model declaring the relation
	Target      string // the opposite model
	Cardinality Cardinality
	Optionality Optionality
	Ownership   Ownership
	Opposite    string // relation name on Target, empty if undeclared
}

func (r *Relation) IsToMany() bool {
	return r.Cardinality == ToMany
}

func (r *Relation) IsRequired() bool {
	return r.Cardinality == ToOne && r.Optionality == Required
}

func (r *Relation) LocalKey() (LocalForeignKey, bool) {
	fk, ok := r.Ownership.(LocalForeignKey)
	return fk, ok
}

func (r *Relation) ForeignKey() (ForeignForeignKey, bool) {
	fk, ok := r.Ownership.(ForeignForeignKey)
	return fk, ok
}

func (r *Relation) Join() (JoinModel, bool) {
	j, ok := r.Ownership.(JoinModel)
	return j, ok
}

func (r *Relation) OwnershipName() string {
	switch r.Ownership.(type) {
	case LocalForeignKey:
		return "LocalForeignKey"
	case ForeignForeignKey:
		return "ForeignForeignKey"
	case JoinModel:
		return "JoinModel"
	}
	return "unknown"
}
