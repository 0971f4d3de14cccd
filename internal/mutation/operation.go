package mutation

import (
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// Tag names a nested operation as it appears in request documents.
type Tag string

const (
	TagCreate          Tag = "create"
	TagCreateMany      Tag = "createMany"
	TagConnect         Tag = "connect"
	TagConnectOrCreate Tag = "connectOrCreate"
	TagSet             Tag = "set"
	TagDisconnect      Tag = "disconnect"
	TagDelete          Tag = "delete"
	TagDeleteMany      Tag = "deleteMany"
	TagUpdate          Tag = "update"
	TagUpdateMany      Tag = "updateMany"
	TagUpsert          Tag = "upsert"
)

// execOrder is the order in which several operations on one to-many
// relation run: removals first, then edits, then additions.
var execOrder = []Tag{
	TagSet,
	TagDisconnect,
	TagDelete,
	TagDeleteMany,
	TagUpdate,
	TagUpdateMany,
	TagUpsert,
	TagConnect,
	TagConnectOrCreate,
	TagCreate,
	TagCreateMany,
}

// Operation is one nested write on one relation. The set of implementations
// is closed; callers switch over the concrete types.
type Operation interface {
	Tag() Tag
	operation()
}

// Selector is a unique-key lookup, keyed by field name with coerced values.
type Selector map[string]any

// Create builds and saves related records. A to-one relation carries exactly
// one element.
type Create struct {
	Data []*Input
}

type CreateMany struct {
	Data []*Input
}

type Connect struct {
	Where []Selector
}

type ConnectOrCreateItem struct {
	Where  Selector
	Create *Input
}

type ConnectOrCreate struct {
	Items []ConnectOrCreateItem
}

// Set replaces the association with the selected records. An empty Where
// clears it (set: null on a to-one relation, set: [] on a to-many one).
type Set struct {
	Where []Selector
}

// Disconnect unlinks the selected records, or the current one when Current
// is set (to-one `disconnect: true`).
type Disconnect struct {
	Where   []Selector
	Current bool
}

// Delete unlinks and deletes the selected records, or the current one.
type Delete struct {
	Where   []Selector
	Current bool
}

type DeleteMany struct {
	Where []*store.Where
}

// UpdateItem patches one related record. A nil Where on a to-one relation
// targets the current association.
type UpdateItem struct {
	Where Selector
	Data  *Input
}

type Update struct {
	Items []UpdateItem
}

type UpdateManyItem struct {
	Where *store.Where
	Data  *Input
}

type UpdateMany struct {
	Items []UpdateManyItem
}

type UpsertItem struct {
	Where  Selector
	Create *Input
	Update *Input
}

type Upsert struct {
	Items []UpsertItem
}

func (Create) Tag() Tag          { return TagCreate }
func (CreateMany) Tag() Tag      { return TagCreateMany }
func (Connect) Tag() Tag         { return TagConnect }
func (ConnectOrCreate) Tag() Tag { return TagConnectOrCreate }
func (Set) Tag() Tag             { return TagSet }
func (Disconnect) Tag() Tag      { return TagDisconnect }
func (Delete) Tag() Tag          { return TagDelete }
func (DeleteMany) Tag() Tag      { return TagDeleteMany }
func (Update) Tag() Tag          { return TagUpdate }
func (UpdateMany) Tag() Tag      { return TagUpdateMany }
func (Upsert) Tag() Tag          { return TagUpsert }

func (Create) operation()          {}
func (CreateMany) operation()      {}
func (Connect) operation()         {}
func (ConnectOrCreate) operation() {}
func (Set) operation()             {}
func (Disconnect) operation()      {}
func (Delete) operation()          {}
func (DeleteMany) operation()      {}
func (Update) operation()          {}
func (UpdateMany) operation()      {}
func (Upsert) operation()          {}

// Input is a parsed create or update body for one model.
type Input struct {
	Model *schema.Model
	// Fields holds coerced scalar values keyed by field name.
	Fields map[string]any
	// Relations lists nested writes in relation declaration order.
	Relations []RelationInput
	// Path locates the body in the request, for error reporting.
	Path []string
}

// RelationInput is the operation list for one relation key. To-one
// relations carry exactly one operation; to-many ones are in execution
// order.
type RelationInput struct {
	Relation *schema.Relation
	Ops      []Operation
	Path     []string
}

// Relation returns the nested writes for the named relation, if any.
func (in *Input) Relation(name string) (RelationInput, bool) {
	for _, ri := range in.Relations {
		if ri.Relation.Name == name {
			return ri, true
		}
	}
	return RelationInput{}, false
}
