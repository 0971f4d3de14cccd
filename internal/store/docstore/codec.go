package docstore

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// docKey is the document key of field f. A single-field primary key is
// stored as _id.
func docKey(m *schema.Model, f *schema.Field) string {
	if len(m.PrimaryKey) == 1 && m.PrimaryKey[0] == f.Name {
		return "_id"
	}
	return f.Column
}

func isIDKey(m *schema.Model, key []string) bool {
	return len(key) == 1 && len(m.PrimaryKey) == 1 && key[0] == m.PrimaryKey[0]
}

// uniqueIndex builds the index enforcing key. Documents with a null in an
// optional field of the key stay out of the index, as SQL NULLs do.
func uniqueIndex(m *schema.Model, key []string) mongo.IndexModel {
	keys := bson.D{}
	partial := bson.D{}
	cols := make([]string, len(key))
	for i, name := range key {
		f := m.Field(name)
		col := docKey(m, f)
		keys = append(keys, bson.E{Key: col, Value: 1})
		cols[i] = col
		if f.Optional {
			partial = append(partial, bson.E{Key: col, Value: bson.D{{Key: "$type", Value: bsonType(f)}}})
		}
	}
	opts := options.Index().SetUnique(true).SetName(m.Table + "_" + strings.Join(cols, "_") + "_key")
	if len(partial) > 0 {
		opts.SetPartialFilterExpression(partial)
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

// bsonType is the $type alias of the values stored for f.
func bsonType(f *schema.Field) string {
	switch f.Type {
	case schema.TypeString:
		return "string"
	case schema.TypeBool:
		return "bool"
	case schema.TypeDateTime:
		return "date"
	case schema.TypeJSON:
		return "object"
	}
	return "number"
}

// encode renders the given fields of r as a document. Nil values are stored
// as null so filters on them behave like SQL NULL.
func encode(r *store.Record, fields []string) bson.D {
	doc := bson.D{}
	for _, name := range fields {
		f := r.Model.Field(name)
		v, ok := r.Values[name]
		if f == nil || !ok {
			continue
		}
		doc = append(doc, bson.E{Key: docKey(r.Model, f), Value: v})
	}
	return doc
}

func selectorDoc(m *schema.Model, sel map[string]any) bson.D {
	doc := bson.D{}
	for _, f := range m.Fields {
		if v, ok := sel[f.Name]; ok {
			doc = append(doc, bson.E{Key: docKey(m, f), Value: v})
		}
	}
	return doc
}

// decode maps a stored document back onto field names and connector types.
func decode(m *schema.Model, doc bson.M) *store.Record {
	values := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		v, ok := doc[docKey(m, f)]
		if !ok {
			values[f.Name] = nil
			continue
		}
		values[f.Name] = normalize(f, v)
	}
	return store.Loaded(m, values)
}

func normalize(f *schema.Field, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case int32:
		if f.Type == schema.TypeFloat || f.Type == schema.TypeDecimal {
			return float64(x)
		}
		return int64(x)
	case int64:
		if f.Type == schema.TypeFloat || f.Type == schema.TypeDecimal {
			return float64(x)
		}
		return x
	}
	if f.Type == schema.TypeJSON {
		return plain(v)
	}
	return v
}

// plain converts nested BSON containers to maps and slices.
func plain(v any) any {
	switch x := v.(type) {
	case bson.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	}
	return v
}
