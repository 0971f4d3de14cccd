package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// Tx implements store.Tx on a session transaction.
type Tx struct {
	store *Store
	sess  mongo.Session
	done  bool
}

func (t *Tx) ctx(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, t.sess)
}

func (t *Tx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	ctx := context.Background()
	defer t.sess.EndSession(ctx)
	return classify(t.sess.CommitTransaction(ctx))
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	ctx := context.Background()
	defer t.sess.EndSession(ctx)
	return t.sess.AbortTransaction(ctx)
}

func (t *Tx) Save(ctx context.Context, r *store.Record) error {
	if r.IsNew() {
		return t.insert(ctx, r)
	}
	return t.update(ctx, r)
}

func (t *Tx) insert(ctx context.Context, r *store.Record) error {
	m := r.Model
	for _, f := range m.Fields {
		if f.AutoIncrement && r.Get(f.Name) == nil {
			seq, err := t.next(ctx, m)
			if err != nil {
				return err
			}
			r.Values[f.Name] = seq
		}
	}
	doc := encode(r, m.FieldNames())
	t.store.log.Debug("insert", zap.String("collection", m.Table), zap.Any("doc", doc))
	if _, err := t.coll(m).InsertOne(t.ctx(ctx), doc); err != nil {
		return classify(err)
	}
	r.MarkPersisted()
	return nil
}

// next draws the following value of m's sequence.
func (t *Tx) next(ctx context.Context, m *schema.Model) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := t.store.db.Collection(countersCollection).FindOneAndUpdate(
		t.ctx(ctx),
		bson.D{{Key: "_id", Value: m.Table}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", m.Table, classify(err))
	}
	return out.Seq, nil
}

func (t *Tx) update(ctx context.Context, r *store.Record) error {
	dirty := r.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	m := r.Model
	set := encode(r, dirty)
	res, err := t.coll(m).UpdateOne(t.ctx(ctx), selectorDoc(m, r.OriginalKey()), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return apperr.ObjectNotFound(m.Name, r.OriginalKey())
	}
	r.MarkPersisted()
	return nil
}

func (t *Tx) Delete(ctx context.Context, r *store.Record) error {
	res, err := t.coll(r.Model).DeleteOne(t.ctx(ctx), selectorDoc(r.Model, r.OriginalKey()))
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return apperr.ObjectNotFound(r.Model.Name, r.OriginalKey())
	}
	return nil
}

func (t *Tx) FindUnique(ctx context.Context, m *schema.Model, selector map[string]any) (*store.Record, error) {
	var doc bson.M
	err := t.coll(m).FindOne(t.ctx(ctx), selectorDoc(m, selector)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return decode(m, doc), nil
}

func (t *Tx) FindMany(ctx context.Context, m *schema.Model, where *store.Where) ([]*store.Record, error) {
	q, err := filter(m, where)
	if err != nil {
		return nil, err
	}
	cur, err := t.coll(m).Find(t.ctx(ctx), q, options.Find().SetSort(sortByKey(m)))
	if err != nil {
		return nil, classify(err)
	}
	var docs []bson.M
	if err := cur.All(t.ctx(ctx), &docs); err != nil {
		return nil, classify(err)
	}
	out := make([]*store.Record, len(docs))
	for i, doc := range docs {
		out[i] = decode(m, doc)
	}
	return out, nil
}

func (t *Tx) coll(m *schema.Model) *mongo.Collection {
	return t.store.db.Collection(m.Table)
}

var _ store.Tx = (*Tx)(nil)
