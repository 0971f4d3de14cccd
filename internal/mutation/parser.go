package mutation

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/schema"
)

const (
	msgSingleMany       = "Single relationship cannot create/update/delete many."
	msgRequiredRemove   = "Required relation cannot disconnect/delete."
	DefaultMaxDepth int = 32
)

// Parser turns decoded request documents into typed nested operations. It
// checks every shape and legality rule, so the resolver can trust its input
// and no write starts for an illegal request.
type Parser struct {
	graph    *schema.Graph
	maxDepth int
}

func NewParser(g *schema.Graph, maxDepth int) *Parser {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Parser{graph: g, maxDepth: maxDepth}
}

// scope carries what a nested body may not set because the enclosing write
// provides it.
type scope struct {
	depth   int
	path    []string
	create  bool
	implied *schema.Relation // relation on this model pointing back at the parent
	fkSet   map[string]bool  // local fields the parent fills in
}

func (s scope) at(segments ...string) []string {
	return append(append([]string{}, s.path...), segments...)
}

// ParseCreate parses a create body for model.
func (p *Parser) ParseCreate(model *schema.Model, body map[string]any) (*Input, error) {
	return p.parseBody(model, body, scope{path: []string{model.Name}, create: true})
}

// ParseUpdate parses an update body for model.
func (p *Parser) ParseUpdate(model *schema.Model, body map[string]any) (*Input, error) {
	return p.parseBody(model, body, scope{path: []string{model.Name}})
}

// nestedScope derives the scope of a body written through rel, whose
// target's side of the relation is implied by the parent.
func (p *Parser) nestedScope(rel *schema.Relation, s scope, create bool, path []string) scope {
	ns := scope{depth: s.depth + 1, path: path, create: create}
	_, opp := p.graph.Opposite(rel)
	ns.implied = opp
	if _, holderRel, fk, ok := p.graph.ForeignKeyOf(rel); ok && holderRel != rel {
		ns.implied = holderRel
		ns.fkSet = make(map[string]bool, len(fk.LocalFields))
		for _, f := range fk.LocalFields {
			ns.fkSet[f] = true
		}
	}
	return ns
}

func (p *Parser) parseBody(model *schema.Model, body map[string]any, s scope) (*Input, error) {
	if s.depth > p.maxDepth {
		return nil, apperr.InvalidInputf(s.path, "nested write exceeds the maximum depth of %d", p.maxDepth)
	}
	in := &Input{Model: model, Fields: make(map[string]any), Path: s.path}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rels := make(map[string]RelationInput)
	for _, key := range keys {
		val := body[key]
		if f := model.Field(key); f != nil {
			if s.fkSet[key] {
				return nil, apperr.InvalidInputf(s.at(key), "field %s is set by the enclosing relation", key)
			}
			if val == nil {
				if f.IsRequired() {
					return nil, apperr.InvalidInputf(s.at(key), "field %s is required and cannot be null", key)
				}
				in.Fields[key] = nil
				continue
			}
			v, err := f.Coerce(val)
			if err != nil {
				return nil, apperr.InvalidInput(err.Error(), s.at(key)...)
			}
			in.Fields[key] = v
			continue
		}
		if rel := model.Relation(key); rel != nil {
			if s.implied != nil && rel.Name == s.implied.Name {
				return nil, apperr.InvalidInputf(s.at(key), "relation %s is set by the enclosing relation", key)
			}
			ri, err := p.parseRelation(rel, val, s)
			if err != nil {
				return nil, err
			}
			rels[key] = ri
			continue
		}
		return nil, apperr.InvalidInputf(s.at(key), "unknown field %s on model %s", key, model.Name)
	}

	for _, rel := range model.Relations {
		if ri, ok := rels[rel.Name]; ok {
			in.Relations = append(in.Relations, ri)
		}
	}

	// A key cannot be written both as scalars and through its relation.
	for _, ri := range in.Relations {
		fk, ok := ri.Relation.LocalKey()
		if !ok {
			continue
		}
		for _, f := range fk.LocalFields {
			if _, set := in.Fields[f]; set {
				return nil, apperr.InvalidInputf(ri.Path, "cannot set both %s and relation %s", f, ri.Relation.Name)
			}
		}
	}

	if s.create {
		if err := p.checkRequired(model, in, s); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// checkRequired rejects a create that leaves a required field or relation
// without a value.
func (p *Parser) checkRequired(model *schema.Model, in *Input, s scope) error {
	satisfied := make(map[string]bool)
	for f := range s.fkSet {
		satisfied[f] = true
	}
	for _, ri := range in.Relations {
		if fk, ok := ri.Relation.LocalKey(); ok {
			for _, f := range fk.LocalFields {
				satisfied[f] = true
			}
		}
	}
	for _, f := range model.Fields {
		if !f.IsRequired() || f.HasDefault() || satisfied[f.Name] {
			continue
		}
		if _, ok := in.Fields[f.Name]; !ok {
			return apperr.InvalidInputf(s.at(f.Name), "field %s is required", f.Name)
		}
	}
	for _, rel := range model.Relations {
		if !rel.IsRequired() || (s.implied != nil && rel.Name == s.implied.Name) {
			continue
		}
		if _, ok := in.Relation(rel.Name); ok {
			continue
		}
		if _, ok := rel.LocalKey(); ok {
			// Covered by the field check above.
			continue
		}
		return apperr.InvalidInputf(s.at(rel.Name), "relation %s is required", rel.Name)
	}
	return nil
}

func (p *Parser) parseRelation(rel *schema.Relation, val any, s scope) (RelationInput, error) {
	path := s.at(rel.Name)
	ri := RelationInput{Relation: rel, Path: path}
	body, ok := val.(map[string]any)
	if !ok || len(body) == 0 {
		return ri, apperr.InvalidInputf(path, "relation %s expects an object of nested operations", rel.Name)
	}
	for key := range body {
		if !isTag(key) {
			return ri, apperr.InvalidInputf(join(path, key), "unknown operation %s on relation %s", key, rel.Name)
		}
	}

	for _, tag := range execOrder {
		raw, present := body[string(tag)]
		if !present {
			continue
		}
		opPath := join(path, string(tag))
		if err := p.checkLegal(rel, tag, raw, s.create); err != nil {
			return ri, err.WithPath(opPath...)
		}
		op, err := p.parseOp(rel, tag, raw, s, opPath)
		if err != nil {
			return ri, err
		}
		ri.Ops = append(ri.Ops, op)
	}
	if !rel.IsToMany() && len(ri.Ops) > 1 {
		return ri, apperr.InvalidInputf(path, "single relationship %s accepts one operation, got %d", rel.Name, len(ri.Ops))
	}
	return ri, nil
}

func isTag(s string) bool {
	for _, t := range execOrder {
		if string(t) == s {
			return true
		}
	}
	return false
}

// checkLegal applies the cardinality and optionality rules of a relation.
func (p *Parser) checkLegal(rel *schema.Relation, tag Tag, raw any, create bool) *apperr.Error {
	if !rel.IsToMany() {
		switch tag {
		case TagCreateMany, TagUpdateMany, TagDeleteMany:
			return apperr.InvalidInput(msgSingleMany)
		}
	}
	if rel.IsRequired() {
		switch {
		case tag == TagDisconnect, tag == TagDelete, tag == TagSet && raw == nil:
			return apperr.InvalidInput(msgRequiredRemove)
		}
	}
	if create {
		switch tag {
		case TagCreate, TagCreateMany, TagConnect, TagConnectOrCreate, TagSet:
		default:
			return apperr.InvalidInputf(nil, "%s is not allowed when creating a record", tag)
		}
		return nil
	}
	// Unlinking from the non-holding side would leave a required key empty.
	if tag == TagDisconnect || tag == TagSet {
		if holder, holderRel, _, ok := p.graph.ForeignKeyOf(rel); ok && holderRel != rel && holderRel.IsRequired() {
			return apperr.InvalidInputf(nil, "relation %s cannot %s: %s.%s is required", rel.Name, tag, holder.Name, holderRel.Name)
		}
	}
	return nil
}

func (p *Parser) parseOp(rel *schema.Relation, tag Tag, raw any, s scope, path []string) (Operation, error) {
	target := p.graph.Model(rel.Target)
	many := rel.IsToMany()

	switch tag {
	case TagCreate:
		items, err := p.objects(raw, many, path)
		if err != nil {
			return nil, err
		}
		op := Create{}
		for i, item := range items {
			in, err := p.parseBody(target, item, p.nestedScope(rel, s, true, elem(path, i, isList(raw))))
			if err != nil {
				return nil, err
			}
			op.Data = append(op.Data, in)
		}
		return op, nil

	case TagCreateMany:
		if m, ok := raw.(map[string]any); ok {
			raw = m["data"]
		}
		items, err := p.objects(raw, true, path)
		if err != nil {
			return nil, err
		}
		op := CreateMany{}
		for i, item := range items {
			in, err := p.parseBody(target, item, p.nestedScope(rel, s, true, elem(path, i, isList(raw))))
			if err != nil {
				return nil, err
			}
			op.Data = append(op.Data, in)
		}
		return op, nil

	case TagConnect:
		sels, err := p.selectors(target, raw, many, path)
		return Connect{Where: sels}, err

	case TagSet:
		if raw == nil {
			return Set{}, nil
		}
		sels, err := p.selectors(target, raw, many, path)
		return Set{Where: sels}, err

	case TagDisconnect, TagDelete:
		var sels []Selector
		current := false
		if b, ok := raw.(bool); ok && !many {
			if !b {
				return nil, apperr.InvalidInputf(path, "%s expects true or a selector", tag)
			}
			current = true
		} else {
			var err error
			if sels, err = p.selectors(target, raw, many, path); err != nil {
				return nil, err
			}
		}
		if tag == TagDelete {
			return Delete{Where: sels, Current: current}, nil
		}
		return Disconnect{Where: sels, Current: current}, nil

	case TagDeleteMany:
		items, err := p.objects(raw, true, path)
		if err != nil {
			return nil, err
		}
		op := DeleteMany{}
		for i, item := range items {
			w, err := ParseWhere(target, item, elem(path, i, isList(raw)))
			if err != nil {
				return nil, err
			}
			op.Where = append(op.Where, w)
		}
		return op, nil

	case TagConnectOrCreate:
		items, err := p.objects(raw, many, path)
		if err != nil {
			return nil, err
		}
		op := ConnectOrCreate{}
		for i, item := range items {
			ip := elem(path, i, isList(raw))
			if err := onlyKeys(item, ip, "where", "create"); err != nil {
				return nil, err
			}
			sel, err := p.selector(target, item["where"], join(ip, "where"))
			if err != nil {
				return nil, err
			}
			body, ok := item["create"].(map[string]any)
			if !ok {
				return nil, apperr.InvalidInputf(ip, "connectOrCreate requires where and create")
			}
			in, err := p.parseBody(target, body, p.nestedScope(rel, s, true, join(ip, "create")))
			if err != nil {
				return nil, err
			}
			op.Items = append(op.Items, ConnectOrCreateItem{Where: sel, Create: in})
		}
		return op, nil

	case TagUpdate:
		items, err := p.objects(raw, many, path)
		if err != nil {
			return nil, err
		}
		op := Update{}
		for i, item := range items {
			ip := elem(path, i, isList(raw))
			var sel Selector
			data := item
			if many || isWrapped(target, item) {
				if err := onlyKeys(item, ip, "where", "data"); err != nil {
					return nil, err
				}
				if many || item["where"] != nil {
					if sel, err = p.selector(target, item["where"], join(ip, "where")); err != nil {
						return nil, err
					}
				}
				if data, err = object(item["data"], join(ip, "data")); err != nil {
					return nil, err
				}
			}
			in, err := p.parseBody(target, data, p.nestedScope(rel, s, false, ip))
			if err != nil {
				return nil, err
			}
			op.Items = append(op.Items, UpdateItem{Where: sel, Data: in})
		}
		return op, nil

	case TagUpdateMany:
		items, err := p.objects(raw, true, path)
		if err != nil {
			return nil, err
		}
		op := UpdateMany{}
		for i, item := range items {
			ip := elem(path, i, isList(raw))
			if err := onlyKeys(item, ip, "where", "data"); err != nil {
				return nil, err
			}
			w, err := ParseWhere(target, item["where"], join(ip, "where"))
			if err != nil {
				return nil, err
			}
			data, err := object(item["data"], join(ip, "data"))
			if err != nil {
				return nil, err
			}
			in, err := p.parseBody(target, data, p.nestedScope(rel, s, false, join(ip, "data")))
			if err != nil {
				return nil, err
			}
			op.Items = append(op.Items, UpdateManyItem{Where: w, Data: in})
		}
		return op, nil

	case TagUpsert:
		items, err := p.objects(raw, many, path)
		if err != nil {
			return nil, err
		}
		op := Upsert{}
		for i, item := range items {
			ip := elem(path, i, isList(raw))
			if err := onlyKeys(item, ip, "where", "create", "update"); err != nil {
				return nil, err
			}
			var sel Selector
			if many || item["where"] != nil {
				if sel, err = p.selector(target, item["where"], join(ip, "where")); err != nil {
					return nil, err
				}
			}
			cb, err := object(item["create"], join(ip, "create"))
			if err != nil {
				return nil, err
			}
			ub, err := object(item["update"], join(ip, "update"))
			if err != nil {
				return nil, err
			}
			cin, err := p.parseBody(target, cb, p.nestedScope(rel, s, true, join(ip, "create")))
			if err != nil {
				return nil, err
			}
			uin, err := p.parseBody(target, ub, p.nestedScope(rel, s, false, join(ip, "update")))
			if err != nil {
				return nil, err
			}
			op.Items = append(op.Items, UpsertItem{Where: sel, Create: cin, Update: uin})
		}
		return op, nil
	}
	return nil, apperr.InvalidInputf(path, "unknown operation %s", tag)
}

// elem returns the path of item i, relative to the scope the caller passes
// it to. Lists get an index segment; a single object does not.
func elem(path []string, i int, many bool) []string {
	out := append([]string{}, path...)
	if many {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

// objects normalizes a single object or a list of objects. Lists are only
// accepted when many is set.
func (p *Parser) objects(raw any, many bool, path []string) ([]map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		if !many {
			return nil, apperr.InvalidInput("single relationship expects an object, got a list", path...)
		}
		out := make([]map[string]any, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, apperr.InvalidInputf(elem(path, i, true), "expected an object, got %T", item)
			}
			out[i] = m
		}
		return out, nil
	}
	return nil, apperr.InvalidInputf(path, "expected an object, got %T", raw)
}

// join copies path before appending so sibling paths never share storage.
func join(path []string, segments ...string) []string {
	return append(append(make([]string, 0, len(path)+len(segments)), path...), segments...)
}

func object(raw any, path []string) (map[string]any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.InvalidInputf(path, "expected an object, got %T", raw)
	}
	return m, nil
}

func onlyKeys(m map[string]any, path []string, allowed ...string) error {
	for k := range m {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return apperr.InvalidInputf(join(path, k), "unexpected key %s", k)
		}
	}
	return nil
}

// isWrapped reports whether a to-one update body uses the {where, data}
// form rather than being the data itself.
func isWrapped(m *schema.Model, item map[string]any) bool {
	if _, ok := item["data"]; !ok {
		return false
	}
	if m.Field("data") != nil || m.Relation("data") != nil {
		_, hasWhere := item["where"]
		return hasWhere && len(item) == 2
	}
	return true
}

func (p *Parser) selectors(m *schema.Model, raw any, many bool, path []string) ([]Selector, error) {
	items, err := p.objects(raw, many, path)
	if err != nil {
		return nil, err
	}
	out := make([]Selector, len(items))
	for i, item := range items {
		sel, err := p.selector(m, item, elem(path, i, many && isList(raw)))
		if err != nil {
			return nil, err
		}
		out[i] = sel
	}
	return out, nil
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

// ParseSelector parses a unique-key lookup on m.
func (p *Parser) ParseSelector(m *schema.Model, raw any) (Selector, error) {
	return p.selector(m, raw, []string{m.Name, "where"})
}

func (p *Parser) selector(m *schema.Model, raw any, path []string) (Selector, error) {
	body, ok := raw.(map[string]any)
	if !ok || len(body) == 0 {
		return nil, apperr.InvalidInputf(path, "expected a unique selector object for %s", m.Name)
	}
	sel := make(Selector, len(body))
	fields := make([]string, 0, len(body))
	for k, v := range body {
		f := m.Field(k)
		if f == nil {
			return nil, apperr.InvalidInputf(join(path, k), "unknown field %s on model %s", k, m.Name)
		}
		if v == nil {
			return nil, apperr.InvalidInputf(join(path, k), "selector value for %s cannot be null", k)
		}
		cv, err := f.Coerce(v)
		if err != nil {
			return nil, apperr.InvalidInput(err.Error(), join(path, k)...)
		}
		sel[k] = cv
		fields = append(fields, k)
	}
	if !m.IsUniqueSelector(fields) {
		sort.Strings(fields)
		return nil, apperr.FieldIsNotUnique(m.Name, fields).WithPath(path...)
	}
	return sel, nil
}

func (s Selector) String() string {
	return fmt.Sprint(map[string]any(s))
}
