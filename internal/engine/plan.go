package engine

import (
	"github.com/teodevgroup/teo-sub005/internal/mutation"
	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// executionPlan splits the nested writes of one Input around the save of
// its own record. Entries within a phase do not depend on each other.
type executionPlan struct {
	before []mutation.RelationInput
	after  []mutation.RelationInput
}

func planFor(in *mutation.Input) executionPlan {
	var p executionPlan
	for _, ri := range in.Relations {
		if schema.Classify(ri.Relation) == schema.Before {
			p.before = append(p.before, ri)
		} else {
			p.after = append(p.after, ri)
		}
	}
	return p
}
