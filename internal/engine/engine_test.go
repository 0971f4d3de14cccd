package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/schema/schematest"
	"github.com/teodevgroup/teo-sub005/internal/store"
	"github.com/teodevgroup/teo-sub005/internal/store/sqlstore"
)

var dbSeq atomic.Int64

func openStore(t *testing.T, g *schema.Graph) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:engine%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	dialect, err := sqlstore.NewDialect("sqlite")
	require.NoError(t, err)
	st, err := sqlstore.New(ctx, db, dialect, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx, g))
	return st
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	g := schematest.Blog(t)
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(g, openStore(t, g), opts...)
}

func count(t *testing.T, e *Engine, model string) int {
	t.Helper()
	recs, err := e.FindMany(context.Background(), model, nil, nil)
	require.NoError(t, err)
	return len(recs)
}

func mustCreate(t *testing.T, e *Engine, model string, data map[string]any) Object {
	t.Helper()
	obj, err := e.Create(context.Background(), model, data)
	require.NoError(t, err)
	return obj
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %T: %v", err, err)
	require.Equal(t, kind, appErr.Kind, appErr.Error())
	return appErr
}

func newAuthor(t *testing.T, e *Engine, email string) Object {
	return mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     email,
		"publisher": map[string]any{"connectOrCreate": map[string]any{"where": map[string]any{"name": "Acme"}, "create": map[string]any{"name": "Acme"}}},
	})
}

func TestCreateWithRequiredLocalKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	author := mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
	})

	authors, err := e.FindMany(ctx, "Author", nil, []string{"publisher"})
	require.NoError(t, err)
	require.Len(t, authors, 1)
	publisher, ok := authors[0]["publisher"].(Object)
	require.True(t, ok)
	assert.Equal(t, publisher["id"], authors[0]["publisherId"])
	assert.Equal(t, author["id"], authors[0]["id"])
	assert.IsType(t, time.Time{}, author["createdAt"])

	assert.Equal(t, 1, count(t, e, "Author"))
	assert.Equal(t, 1, count(t, e, "Publisher"))
}

func TestCreateAuthorWithPosts(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	author := mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts":     map[string]any{"create": map[string]any{"title": "Hello"}},
	})

	authors, err := e.FindMany(ctx, "Author", nil, []string{"posts"})
	require.NoError(t, err)
	require.Len(t, authors, 1)
	posts := authors[0]["posts"].([]Object)
	require.Len(t, posts, 1)
	assert.Equal(t, author["id"], posts[0]["authorId"])
	assert.Equal(t, false, posts[0]["published"])
}

func TestUpdateCannotDisconnectRequiredRelation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := newAuthor(t, e, "ann@example.com")

	_, err := e.Update(ctx, "Author", map[string]any{"id": author["id"]}, map[string]any{
		"name":      "Changed",
		"publisher": map[string]any{"disconnect": true},
	})
	appErr := requireKind(t, err, apperr.KindInvalidInput)
	assert.Equal(t, "Required relation cannot disconnect/delete.", appErr.Message)
	assert.Equal(t, []string{"Author", "publisher", "disconnect"}, appErr.Path)

	after, err := e.FindUnique(ctx, "Author", map[string]any{"id": author["id"]}, []string{"publisher"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", after["name"])
	assert.Equal(t, author["publisherId"], after["publisherId"])
	assert.NotNil(t, after["publisher"])
}

func TestCreateConnectsExistingOptionalRecord(t *testing.T) {
	e := newEngine(t)
	player := mustCreate(t, e, "Player", map[string]any{"name": "Terry"})
	require.Equal(t, 1, count(t, e, "Player"))

	kof := mustCreate(t, e, "KOFPlayer", map[string]any{
		"nickname": "Hungry Wolf",
		"player":   map[string]any{"connect": map[string]any{"id": player["id"]}},
	})

	assert.Equal(t, 1, count(t, e, "Player"))
	assert.Equal(t, player["id"], kof["playerId"])
}

func TestSetNullClearsOptionalLocalKey(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	product := mustCreate(t, e, "Product", map[string]any{
		"name":     "Kettle",
		"category": map[string]any{"create": map[string]any{"name": "Kitchen"}},
	})
	require.NotNil(t, product["categoryId"])

	updated, err := e.Update(ctx, "Product", map[string]any{"id": product["id"]}, map[string]any{
		"category": map[string]any{"set": nil},
	})
	require.NoError(t, err)
	assert.Nil(t, updated["categoryId"])

	found, err := e.FindUnique(ctx, "Product", map[string]any{"id": product["id"]}, []string{"category"})
	require.NoError(t, err)
	assert.Nil(t, found["category"])
	assert.Equal(t, 1, count(t, e, "Category"))
}

func TestJoinConnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	post := mustCreate(t, e, "Post", map[string]any{
		"title": "Hello",
		"tags":  map[string]any{"create": map[string]any{"name": "go"}},
	})
	where := map[string]any{"id": post["id"]}

	for i := 0; i < 2; i++ {
		_, err := e.Update(ctx, "Post", where, map[string]any{
			"tags": map[string]any{"connect": map[string]any{"name": "go"}},
		})
		require.NoError(t, err)
	}
	_, err := e.Update(ctx, "Post", where, map[string]any{
		"tags": map[string]any{"connect": []any{map[string]any{"name": "go"}, map[string]any{"name": "go"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, e, "_PostToTag"))
	assert.Equal(t, 1, count(t, e, "Tag"))
}

// recordingTx logs every Save with the values the record carried when the
// save was issued.
type recordingTx struct {
	store.Tx
	saves *[]savedRecord
}

type savedRecord struct {
	model  string
	values map[string]any
}

func (t *recordingTx) Save(ctx context.Context, r *store.Record) error {
	*t.saves = append(*t.saves, savedRecord{model: r.Model.Name, values: r.Clone().Values})
	return t.Tx.Save(ctx, r)
}

type recordingConnector struct {
	store.Connector
	saves *[]savedRecord
}

func (c recordingConnector) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := c.Connector.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &recordingTx{Tx: tx, saves: c.saves}, nil
}

func TestLocalKeysResolveBeforeSubjectSave(t *testing.T) {
	g := schematest.Blog(t)
	var saves []savedRecord
	e := New(g, recordingConnector{Connector: openStore(t, g), saves: &saves})

	author := mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts":     map[string]any{"create": map[string]any{"title": "Hello"}},
	})

	index := map[string]int{}
	for i, s := range saves {
		index[s.model] = i
	}
	require.Len(t, saves, 3)
	assert.Less(t, index["Publisher"], index["Author"])
	assert.Less(t, index["Author"], index["Post"])

	atSave := saves[index["Author"]].values
	require.NotNil(t, atSave["publisherId"])
	assert.Equal(t, author["publisherId"], atSave["publisherId"])
	assert.Equal(t, author["id"], saves[index["Post"]].values["authorId"])
}

func TestNestedFailureRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Create(ctx, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts": map[string]any{"create": map[string]any{
			"title": "Hello",
			"tags":  map[string]any{"connect": map[string]any{"name": "missing"}},
		}},
	})
	appErr := requireKind(t, err, apperr.KindObjectNotFound)
	assert.Equal(t, []string{"Author", "posts", "create", "tags", "connect"}, appErr.Path)

	assert.Equal(t, 0, count(t, e, "Author"))
	assert.Equal(t, 0, count(t, e, "Publisher"))
	assert.Equal(t, 0, count(t, e, "Post"))
}

func TestConnectMissingRecord(t *testing.T) {
	e := newEngine(t)
	_, err := e.Create(context.Background(), "KOFPlayer", map[string]any{
		"nickname": "Ghost",
		"player":   map[string]any{"connect": map[string]any{"name": "nobody"}},
	})
	requireKind(t, err, apperr.KindObjectNotFound)
	assert.Equal(t, 0, count(t, e, "KOFPlayer"))
}

func TestSelectorMustBeUnique(t *testing.T) {
	e := newEngine(t)
	_, err := e.Update(context.Background(), "Post", map[string]any{"title": "Hello"}, map[string]any{"title": "x"})
	appErr := requireKind(t, err, apperr.KindFieldIsNotUnique)
	assert.Equal(t, []string{"Post", "where"}, appErr.Path)
}

func TestHasOneCreateReplacesPreviousRecord(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := newAuthor(t, e, "ann@example.com")
	where := map[string]any{"id": author["id"]}

	_, err := e.Update(ctx, "Author", where, map[string]any{
		"profile": map[string]any{"create": map[string]any{"bio": "first"}},
	})
	require.NoError(t, err)
	_, err = e.Update(ctx, "Author", where, map[string]any{
		"profile": map[string]any{"create": map[string]any{"bio": "second"}},
	})
	require.NoError(t, err)

	profiles, err := e.FindMany(ctx, "Profile", nil, nil)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Nil(t, profiles[0]["authorId"])
	assert.Equal(t, author["id"], profiles[1]["authorId"])

	found, err := e.FindUnique(ctx, "Author", where, []string{"profile"})
	require.NoError(t, err)
	assert.Equal(t, "second", found["profile"].(Object)["bio"])
}

func TestHasOneUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := newAuthor(t, e, "ann@example.com")
	where := map[string]any{"id": author["id"]}
	upsert := map[string]any{"profile": map[string]any{"upsert": map[string]any{
		"create": map[string]any{"bio": "created"},
		"update": map[string]any{"bio": "updated"},
	}}}

	_, err := e.Update(ctx, "Author", where, upsert)
	require.NoError(t, err)
	_, err = e.Update(ctx, "Author", where, upsert)
	require.NoError(t, err)

	profiles, err := e.FindMany(ctx, "Profile", nil, nil)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "updated", profiles[0]["bio"])

	_, err = e.Update(ctx, "Author", where, map[string]any{"profile": map[string]any{"delete": true}})
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, e, "Profile"))

	_, err = e.Update(ctx, "Author", where, map[string]any{"profile": map[string]any{"delete": true}})
	requireKind(t, err, apperr.KindObjectNotFound)
}

func TestToManySetReplacesMembers(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	category := mustCreate(t, e, "Category", map[string]any{
		"name": "Kitchen",
		"products": map[string]any{"create": []any{
			map[string]any{"name": "Kettle"},
			map[string]any{"name": "Toaster"},
		}},
	})
	blender := mustCreate(t, e, "Product", map[string]any{"name": "Blender"})

	_, err := e.Update(ctx, "Category", map[string]any{"id": category["id"]}, map[string]any{
		"products": map[string]any{"set": []any{
			map[string]any{"id": int64(2)},
			map[string]any{"id": blender["id"]},
		}},
	})
	require.NoError(t, err)

	products, err := e.FindMany(ctx, "Product", nil, nil)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Nil(t, products[0]["categoryId"])
	assert.Equal(t, category["id"], products[1]["categoryId"])
	assert.Equal(t, category["id"], products[2]["categoryId"])
}

func TestToManyDisconnectAndDelete(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	category := mustCreate(t, e, "Category", map[string]any{
		"name": "Kitchen",
		"products": map[string]any{"createMany": map[string]any{"data": []any{
			map[string]any{"name": "Kettle"},
			map[string]any{"name": "Toaster"},
			map[string]any{"name": "Blender"},
		}}},
	})
	where := map[string]any{"id": category["id"]}

	_, err := e.Update(ctx, "Category", where, map[string]any{
		"products": map[string]any{
			"disconnect": map[string]any{"id": 1},
			"delete":     []any{map[string]any{"id": 2}},
		},
	})
	require.NoError(t, err)

	products, err := e.FindMany(ctx, "Product", nil, nil)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Nil(t, products[0]["categoryId"])
	assert.Equal(t, int64(3), products[1]["id"])

	// Deleting a record outside the collection is a miss.
	_, err = e.Update(ctx, "Category", where, map[string]any{
		"products": map[string]any{"delete": map[string]any{"id": 1}},
	})
	requireKind(t, err, apperr.KindObjectNotFound)
	assert.Equal(t, 2, count(t, e, "Product"))
}

func TestToManyUpdateManyAndDeleteMany(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts": map[string]any{"create": []any{
			map[string]any{"title": "draft: one"},
			map[string]any{"title": "draft: two"},
			map[string]any{"title": "final"},
		}},
	})
	mustCreate(t, e, "Post", map[string]any{"title": "draft: orphan"})
	where := map[string]any{"id": author["id"]}

	_, err := e.Update(ctx, "Author", where, map[string]any{
		"posts": map[string]any{"updateMany": map[string]any{
			"where": map[string]any{"title": map[string]any{"startsWith": "draft"}},
			"data":  map[string]any{"published": true},
		}},
	})
	require.NoError(t, err)

	published, err := e.FindMany(ctx, "Post", map[string]any{"published": true}, nil)
	require.NoError(t, err)
	assert.Len(t, published, 2)

	_, err = e.Update(ctx, "Author", where, map[string]any{
		"posts": map[string]any{"deleteMany": map[string]any{"published": true}},
	})
	require.NoError(t, err)

	remaining, err := e.FindMany(ctx, "Post", nil, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "final", remaining[0]["title"])
	assert.Equal(t, "draft: orphan", remaining[1]["title"])
}

func TestToManyUpdateAndUpsert(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts":     map[string]any{"create": map[string]any{"title": "one"}},
	})
	where := map[string]any{"id": author["id"]}

	_, err := e.Update(ctx, "Author", where, map[string]any{
		"posts": map[string]any{
			"update": map[string]any{"where": map[string]any{"id": 1}, "data": map[string]any{"title": "uno"}},
			"upsert": []any{
				map[string]any{"where": map[string]any{"id": 1}, "create": map[string]any{"title": "x"}, "update": map[string]any{"published": true}},
				map[string]any{"where": map[string]any{"id": 99}, "create": map[string]any{"title": "dos"}, "update": map[string]any{"published": true}},
			},
		},
	})
	require.NoError(t, err)

	found, err := e.FindUnique(ctx, "Author", where, []string{"posts"})
	require.NoError(t, err)
	posts := found["posts"].([]Object)
	require.Len(t, posts, 2)
	assert.Equal(t, "uno", posts[0]["title"])
	assert.Equal(t, true, posts[0]["published"])
	assert.Equal(t, "dos", posts[1]["title"])
	assert.Equal(t, author["id"], posts[1]["authorId"])

	_, err = e.Update(ctx, "Author", where, map[string]any{
		"posts": map[string]any{"update": map[string]any{"where": map[string]any{"id": 42}, "data": map[string]any{"title": "?"}}},
	})
	requireKind(t, err, apperr.KindObjectNotFound)
}

func TestExplicitJoinModel(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "Course", map[string]any{"code": "CS101"})
	student := mustCreate(t, e, "Student", map[string]any{
		"name": "Kim",
		"courses": map[string]any{
			"connect": map[string]any{"code": "CS101"},
			"connectOrCreate": []any{
				map[string]any{"where": map[string]any{"code": "CS101"}, "create": map[string]any{"code": "CS101"}},
				map[string]any{"where": map[string]any{"code": "MA201"}, "create": map[string]any{"code": "MA201"}},
			},
		},
	})
	where := map[string]any{"id": student["id"]}

	enrollments, err := e.FindMany(ctx, "Enrollment", nil, nil)
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Nil(t, enrollments[0]["grade"])
	assert.Equal(t, 2, count(t, e, "Course"))

	_, err = e.Update(ctx, "Student", where, map[string]any{
		"courses": map[string]any{"set": []any{map[string]any{"code": "MA201"}}},
	})
	require.NoError(t, err)

	found, err := e.FindUnique(ctx, "Student", where, []string{"courses.students"})
	require.NoError(t, err)
	courses := found["courses"].([]Object)
	require.Len(t, courses, 1)
	assert.Equal(t, "MA201", courses[0]["code"])
	students := courses[0]["students"].([]Object)
	require.Len(t, students, 1)
	assert.Equal(t, "Kim", students[0]["name"])

	_, err = e.Update(ctx, "Student", where, map[string]any{
		"courses": map[string]any{"disconnect": map[string]any{"code": "MA201"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, e, "Enrollment"))
	assert.Equal(t, 2, count(t, e, "Course"))
}

func TestJoinDeleteRemovesRecordAndRows(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	post := mustCreate(t, e, "Post", map[string]any{
		"title": "Hello",
		"tags":  map[string]any{"create": []any{map[string]any{"name": "go"}, map[string]any{"name": "sql"}}},
	})
	other := mustCreate(t, e, "Post", map[string]any{
		"title": "Other",
		"tags":  map[string]any{"connect": map[string]any{"name": "go"}},
	})

	_, err := e.Update(ctx, "Post", map[string]any{"id": post["id"]}, map[string]any{
		"tags": map[string]any{"delete": map[string]any{"name": "go"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, e, "Tag"))
	assert.Equal(t, 1, count(t, e, "_PostToTag"))
	found, err := e.FindUnique(ctx, "Post", map[string]any{"id": other["id"]}, []string{"tags"})
	require.NoError(t, err)
	assert.Empty(t, found["tags"])
}

// Only Student declares the relation; Course has no way back to Enrollment.
const oneSidedCoursesYAML = `
models:
  - name: Student
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: name, type: string, unique: true}
    relations:
      - {name: courses, model: Course, many: true, through: Enrollment, local: student, foreign: course}

  - name: Course
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: code, type: string, unique: true}

  - name: Enrollment
    primary_key: [studentId, courseId]
    fields:
      - {name: studentId, type: int}
      - {name: courseId, type: int}
    relations:
      - {name: student, model: Student, fields: [studentId], references: [id]}
      - {name: course, model: Course, fields: [courseId], references: [id]}
`

func TestJoinDeleteWithoutMirrorRelation(t *testing.T) {
	ctx := context.Background()
	g, err := schema.Parse([]byte(oneSidedCoursesYAML))
	require.NoError(t, err)
	e := New(g, openStore(t, g), WithLogger(zaptest.NewLogger(t)))

	student := mustCreate(t, e, "Student", map[string]any{
		"name":    "Kim",
		"courses": map[string]any{"create": []any{map[string]any{"code": "c1"}, map[string]any{"code": "c2"}}},
	})
	require.Equal(t, 2, count(t, e, "Enrollment"))

	_, err = e.Update(ctx, "Student", map[string]any{"id": student["id"]}, map[string]any{
		"courses": map[string]any{"delete": map[string]any{"code": "c1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, e, "Course"))
	assert.Equal(t, 1, count(t, e, "Enrollment"))

	_, err = e.Delete(ctx, "Course", map[string]any{"code": "c2"})
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, e, "Course"))
	assert.Equal(t, 0, count(t, e, "Enrollment"))
	assert.Equal(t, 1, count(t, e, "Student"))
}

func TestToOneLocalKeyUpdateIsScopedToAssociation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	ann := newAuthor(t, e, "ann@example.com")
	bob := newAuthor(t, e, "bob@example.com")
	post := mustCreate(t, e, "Post", map[string]any{
		"title":  "Hello",
		"author": map[string]any{"connect": map[string]any{"id": ann["id"]}},
	})
	where := map[string]any{"id": post["id"]}

	_, err := e.Update(ctx, "Post", where, map[string]any{
		"author": map[string]any{"update": map[string]any{"where": map[string]any{"id": bob["id"]}, "data": map[string]any{"name": "Hacked"}}},
	})
	appErr := requireKind(t, err, apperr.KindObjectNotFound)
	assert.Equal(t, []string{"Post", "author", "update"}, appErr.Path)

	found, err := e.FindUnique(ctx, "Author", map[string]any{"id": bob["id"]}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ann", found["name"])

	_, err = e.Update(ctx, "Post", where, map[string]any{
		"author": map[string]any{"update": map[string]any{"where": map[string]any{"id": ann["id"]}, "data": map[string]any{"name": "Annie"}}},
	})
	require.NoError(t, err)
	found, err = e.FindUnique(ctx, "Post", where, []string{"author"})
	require.NoError(t, err)
	assert.Equal(t, "Annie", found["author"].(Object)["name"])
	assert.Equal(t, ann["id"], found["authorId"])

	// An upsert whose selector misses the association creates and links.
	_, err = e.Update(ctx, "Post", where, map[string]any{
		"author": map[string]any{"upsert": map[string]any{
			"where":  map[string]any{"id": bob["id"]},
			"create": map[string]any{"name": "Cy", "email": "cy@example.com", "publisher": map[string]any{"connect": map[string]any{"name": "Acme"}}},
			"update": map[string]any{"name": "Hacked"},
		}},
	})
	require.NoError(t, err)
	found, err = e.FindUnique(ctx, "Post", where, []string{"author"})
	require.NoError(t, err)
	assert.Equal(t, "Cy", found["author"].(Object)["name"])
	assert.Equal(t, 3, count(t, e, "Author"))
}

func TestNestedDeleteOfLocalKeyTarget(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	product := mustCreate(t, e, "Product", map[string]any{
		"name":     "Kettle",
		"category": map[string]any{"create": map[string]any{"name": "Kitchen"}},
	})

	updated, err := e.Update(ctx, "Product", map[string]any{"id": product["id"]}, map[string]any{
		"category": map[string]any{"delete": true},
	})
	require.NoError(t, err)
	assert.Nil(t, updated["categoryId"])
	assert.Equal(t, 0, count(t, e, "Category"))
}

func TestDeleteBlockedByRequiredDependents(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := newAuthor(t, e, "ann@example.com")

	_, err := e.Delete(ctx, "Publisher", map[string]any{"id": author["publisherId"]})
	requireKind(t, err, apperr.KindInvalidInput)
	assert.Equal(t, 1, count(t, e, "Publisher"))

	_, err = e.Delete(ctx, "Publisher", map[string]any{"id": 404})
	requireKind(t, err, apperr.KindObjectNotFound)
}

func TestDeleteReleasesOptionalDependents(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts": map[string]any{"create": map[string]any{
			"title": "Hello",
			"tags":  map[string]any{"create": map[string]any{"name": "go"}},
		}},
		"profile": map[string]any{"create": map[string]any{"bio": "hi"}},
	})

	deleted, err := e.Delete(ctx, "Author", map[string]any{"email": "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, author["id"], deleted["id"])

	posts, err := e.FindMany(ctx, "Post", nil, nil)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Nil(t, posts[0]["authorId"])

	_, err = e.Delete(ctx, "Post", map[string]any{"id": posts[0]["id"]})
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, e, "_PostToTag"))
	assert.Equal(t, 1, count(t, e, "Tag"))
	assert.Equal(t, 1, count(t, e, "Profile"))
}

func TestTopLevelUpsert(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	where := map[string]any{"name": "Terry"}

	created, err := e.Upsert(ctx, "Player", where, map[string]any{"name": "Terry"}, map[string]any{"name": "Andy"})
	require.NoError(t, err)
	assert.Equal(t, "Terry", created["name"])

	updated, err := e.Upsert(ctx, "Player", where, map[string]any{"name": "Terry"}, map[string]any{"name": "Andy"})
	require.NoError(t, err)
	assert.Equal(t, created["id"], updated["id"])
	assert.Equal(t, "Andy", updated["name"])
	assert.Equal(t, 1, count(t, e, "Player"))
}

func TestUniqueViolationSurfacesBackendKind(t *testing.T) {
	e := newEngine(t)
	mustCreate(t, e, "Player", map[string]any{"name": "Terry"})
	_, err := e.Create(context.Background(), "Player", map[string]any{"name": "Terry"})
	appErr := requireKind(t, err, apperr.KindUniqueConstraintViolation)
	assert.Equal(t, []string{"Player"}, appErr.Path)
}

func TestFindManyFiltersAndNestedIncludes(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustCreate(t, e, "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts": map[string]any{"create": []any{
			map[string]any{"title": "Go", "tags": map[string]any{"create": map[string]any{"name": "go"}}},
			map[string]any{"title": "SQL"},
		}},
	})

	authors, err := e.FindMany(ctx, "Author", map[string]any{
		"OR": []any{
			map[string]any{"email": map[string]any{"endsWith": "@example.com"}},
			map[string]any{"name": "nobody"},
		},
	}, []string{"posts.tags", "publisher"})
	require.NoError(t, err)
	require.Len(t, authors, 1)

	posts := authors[0]["posts"].([]Object)
	require.Len(t, posts, 2)
	assert.Len(t, posts[0]["tags"], 1)
	assert.Empty(t, posts[1]["tags"])
	assert.Equal(t, "Acme", authors[0]["publisher"].(Object)["name"])

	_, err = e.FindMany(ctx, "Author", nil, []string{"nope"})
	requireKind(t, err, apperr.KindInvalidInput)

	none, err := e.FindMany(ctx, "Author", map[string]any{"name": map[string]any{"in": []any{}}}, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMaxDepthRejectsDeepBodies(t *testing.T) {
	e := newEngine(t, WithMaxDepth(1))
	_, err := e.Create(context.Background(), "Author", map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"create": map[string]any{"name": "Acme"}},
		"posts": map[string]any{"create": map[string]any{
			"title": "Hello",
			"tags":  map[string]any{"create": map[string]any{"name": "go"}},
		}},
	})
	requireKind(t, err, apperr.KindInvalidInput)
	assert.Equal(t, 0, count(t, e, "Publisher"))
}

func TestUnknownModel(t *testing.T) {
	e := newEngine(t)
	_, err := e.Create(context.Background(), "Nope", map[string]any{})
	requireKind(t, err, apperr.KindInvalidInput)
}

func TestCanceledContextRollsBack(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Create(ctx, "Player", map[string]any{"name": "Terry"})
	require.Error(t, err)
	assert.Equal(t, 0, count(t, e, "Player"))
}
