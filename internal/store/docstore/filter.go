package docstore

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// filter translates w into a query document on m.
func filter(m *schema.Model, w *store.Where) (bson.D, error) {
	if w.IsEmpty() {
		return bson.D{}, nil
	}
	var and bson.A
	for _, c := range w.Conds {
		f := m.Field(c.Field)
		if f == nil {
			return nil, fmt.Errorf("unknown field %s on %s", c.Field, m.Name)
		}
		cond, err := condition(c)
		if err != nil {
			return nil, err
		}
		and = append(and, bson.D{{Key: docKey(m, f), Value: cond}})
	}
	for _, sub := range w.And {
		d, err := filter(m, sub)
		if err != nil {
			return nil, err
		}
		and = append(and, d)
	}
	if len(w.Or) > 0 {
		var or bson.A
		for _, sub := range w.Or {
			d, err := filter(m, sub)
			if err != nil {
				return nil, err
			}
			or = append(or, d)
		}
		and = append(and, bson.D{{Key: "$or", Value: or}})
	}
	if len(w.Not) > 0 {
		var nor bson.A
		for _, sub := range w.Not {
			d, err := filter(m, sub)
			if err != nil {
				return nil, err
			}
			nor = append(nor, d)
		}
		and = append(and, bson.D{{Key: "$nor", Value: nor}})
	}
	if len(and) == 1 {
		return and[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: and}}, nil
}

func condition(c store.Cond) (bson.D, error) {
	switch c.Op {
	case store.OpEquals:
		return bson.D{{Key: "$eq", Value: c.Value}}, nil
	case store.OpNot:
		return bson.D{{Key: "$ne", Value: c.Value}}, nil
	case store.OpIn, store.OpNotIn:
		list, ok := c.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s on %s expects a list", c.Op, c.Field)
		}
		op := "$in"
		if c.Op == store.OpNotIn {
			op = "$nin"
		}
		return bson.D{{Key: op, Value: bson.A(list)}}, nil
	case store.OpLt:
		return bson.D{{Key: "$lt", Value: c.Value}}, nil
	case store.OpLte:
		return bson.D{{Key: "$lte", Value: c.Value}}, nil
	case store.OpGt:
		return bson.D{{Key: "$gt", Value: c.Value}}, nil
	case store.OpGte:
		return bson.D{{Key: "$gte", Value: c.Value}}, nil
	case store.OpContains, store.OpStartsWith, store.OpEndsWith:
		s, ok := c.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%s on %s expects a string", c.Op, c.Field)
		}
		pattern := regexp.QuoteMeta(s)
		switch c.Op {
		case store.OpStartsWith:
			pattern = "^" + pattern
		case store.OpEndsWith:
			pattern = pattern + "$"
		}
		return bson.D{{Key: "$regex", Value: pattern}}, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", c.Op)
}

// sortByKey orders results by primary key, matching the relational store.
func sortByKey(m *schema.Model) bson.D {
	d := bson.D{}
	for _, name := range m.PrimaryKey {
		d = append(d, bson.E{Key: docKey(m, m.Field(name)), Value: 1})
	}
	return d
}
