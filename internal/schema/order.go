package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Phase says when a relation is written relative to its subject record.
type Phase int

const (
	// Before: the subject holds the key, so the related record must exist first.
	Before Phase = iota
	// After: the related record or a join row needs the subject's key.
	After
)

func (p Phase) String() string {
	if p == After {
		return "after"
	}
	return "before"
}

// Classify partitions a subject's relations. Only LocalForeignKey relations
// are written before the subject.
func Classify(rel *Relation) Phase {
	if _, ok := rel.Ownership.(LocalForeignKey); ok {
		return Before
	}
	return After
}

// CycleError reports models whose required foreign keys depend on each other.
type CycleError struct {
	Models []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("schema: required foreign key cycle between %s", strings.Join(e.Models, ", "))
}

// SeedOrder sorts all models into levels such that every Required
// LocalForeignKey of a model in level n points into a level < n. Models in
// one level do not depend on each other and may be loaded concurrently.
// Self references are ignored: the referenced row is inserted first by the
// caller, or the key is optional.
func (g *Graph) SeedOrder() ([][]*Model, error) {
	deps := make(map[string]map[string]bool, len(g.models))
	dependents := make(map[string][]string, len(g.models))
	for _, m := range g.models {
		deps[m.Name] = make(map[string]bool)
	}
	for _, m := range g.models {
		for _, rel := range m.Relations {
			if Classify(rel) != Before || !rel.IsRequired() || rel.Target == m.Name {
				continue
			}
			if !deps[m.Name][rel.Target] {
				deps[m.Name][rel.Target] = true
				dependents[rel.Target] = append(dependents[rel.Target], m.Name)
			}
		}
	}

	var levels [][]*Model
	remaining := len(g.models)
	var ready []string
	for _, m := range g.models {
		if len(deps[m.Name]) == 0 {
			ready = append(ready, m.Name)
		}
	}
	for len(ready) > 0 {
		sort.Strings(ready)
		level := make([]*Model, len(ready))
		var next []string
		for i, name := range ready {
			level[i] = g.index[name]
			for _, dep := range dependents[name] {
				delete(deps[dep], name)
				if len(deps[dep]) == 0 {
					next = append(next, dep)
				}
			}
		}
		levels = append(levels, level)
		remaining -= len(ready)
		ready = next
	}

	if remaining > 0 {
		var stuck []string
		for name, d := range deps {
			if len(d) > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{Models: stuck}
	}
	return levels, nil
}
