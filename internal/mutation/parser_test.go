package mutation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/mutation"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/schema/schematest"
)

func newParser(t *testing.T) (*mutation.Parser, *schema.Graph) {
	g := schematest.Blog(t)
	return mutation.NewParser(g, 0), g
}

func invalid(t *testing.T, err error) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok, "%T: %v", err, err)
	assert.Equal(t, apperr.KindInvalidInput, appErr.Kind, appErr.Error())
	return appErr
}

func TestParseCreateNested(t *testing.T) {
	p, g := newParser(t)
	in, err := p.ParseCreate(g.Model("Author"), map[string]any{
		"name":      "Ann",
		"email":     "ann@example.com",
		"publisher": map[string]any{"connect": map[string]any{"name": "Acme"}},
		"posts": map[string]any{"create": []any{
			map[string]any{"title": "One", "tags": map[string]any{"connect": map[string]any{"name": "go"}}},
			map[string]any{"title": "Two"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "Ann", "email": "ann@example.com"}, in.Fields)
	require.Len(t, in.Relations, 2)
	assert.Equal(t, "publisher", in.Relations[0].Relation.Name)
	assert.Equal(t, []string{"Author", "publisher"}, in.Relations[0].Path)

	connect := in.Relations[0].Ops[0].(mutation.Connect)
	assert.Equal(t, []mutation.Selector{{"name": "Acme"}}, connect.Where)

	posts, ok := in.Relation("posts")
	require.True(t, ok)
	create := posts.Ops[0].(mutation.Create)
	require.Len(t, create.Data, 2)
	assert.Equal(t, []string{"Author", "posts", "create", "1"}, create.Data[1].Path)
	tags, ok := create.Data[0].Relation("tags")
	require.True(t, ok)
	assert.Equal(t, []string{"Author", "posts", "create", "0", "tags"}, tags.Path)
}

func TestParseOrdersOperations(t *testing.T) {
	p, g := newParser(t)
	in, err := p.ParseUpdate(g.Model("Category"), map[string]any{
		"products": map[string]any{
			"create":     map[string]any{"name": "Kettle"},
			"connect":    map[string]any{"id": 2},
			"disconnect": map[string]any{"id": 3},
			"updateMany": map[string]any{"where": map[string]any{}, "data": map[string]any{"price": 1}},
			"set":        []any{},
		},
	})
	require.NoError(t, err)

	var tags []mutation.Tag
	for _, op := range in.Relations[0].Ops {
		tags = append(tags, op.Tag())
	}
	assert.Equal(t, []mutation.Tag{
		mutation.TagSet, mutation.TagDisconnect, mutation.TagUpdateMany, mutation.TagConnect, mutation.TagCreate,
	}, tags)
}

func TestLegality(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		create  bool
		body    map[string]any
		message string
	}{
		{"to-one createMany", "Product", false, map[string]any{"category": map[string]any{"createMany": []any{}}}, "Single relationship cannot create/update/delete many."},
		{"to-one updateMany", "Author", false, map[string]any{"profile": map[string]any{"updateMany": map[string]any{}}}, "Single relationship cannot create/update/delete many."},
		{"to-one deleteMany", "Author", false, map[string]any{"profile": map[string]any{"deleteMany": map[string]any{}}}, "Single relationship cannot create/update/delete many."},
		{"required disconnect", "Author", false, map[string]any{"publisher": map[string]any{"disconnect": true}}, "Required relation cannot disconnect/delete."},
		{"required delete", "Author", false, map[string]any{"publisher": map[string]any{"delete": true}}, "Required relation cannot disconnect/delete."},
		{"required set null", "Author", false, map[string]any{"publisher": map[string]any{"set": nil}}, "Required relation cannot disconnect/delete."},
		{"update while creating", "Author", true, map[string]any{"name": "a", "email": "e", "publisher": map[string]any{"update": map[string]any{"name": "x"}}}, "update is not allowed when creating a record"},
		{"disconnect while creating", "Post", true, map[string]any{"title": "t", "tags": map[string]any{"disconnect": map[string]any{"id": 1}}}, "disconnect is not allowed when creating a record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, g := newParser(t)
			var err error
			if tt.create {
				_, err = p.ParseCreate(g.Model(tt.model), tt.body)
			} else {
				_, err = p.ParseUpdate(g.Model(tt.model), tt.body)
			}
			appErr := invalid(t, err)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestLegalOperations(t *testing.T) {
	p, g := newParser(t)
	bodies := []struct {
		model string
		body  map[string]any
	}{
		{"Product", map[string]any{"category": map[string]any{"disconnect": true}}},
		{"Product", map[string]any{"category": map[string]any{"delete": true}}},
		{"Product", map[string]any{"category": map[string]any{"set": nil}}},
		{"Author", map[string]any{"publisher": map[string]any{"update": map[string]any{"name": "x"}}}},
		{"Author", map[string]any{"profile": map[string]any{"upsert": map[string]any{"create": map[string]any{"bio": "b"}, "update": map[string]any{"bio": "c"}}}}},
		{"Author", map[string]any{"posts": map[string]any{"deleteMany": []any{map[string]any{"published": false}}}}},
		{"Post", map[string]any{"tags": map[string]any{"set": []any{map[string]any{"name": "go"}}}}},
		{"Category", map[string]any{"products": map[string]any{"createMany": map[string]any{"data": []any{map[string]any{"name": "k"}}}}}},
	}
	for _, b := range bodies {
		_, err := p.ParseUpdate(g.Model(b.model), b.body)
		assert.NoError(t, err, "%s %v", b.model, b.body)
	}
}

func TestUnlinkingRequiredHolderIsRejected(t *testing.T) {
	p, g := newParser(t)
	appErr := invalid(t, func() error {
		_, err := p.ParseUpdate(g.Model("Publisher"), map[string]any{
			"authors": map[string]any{"disconnect": map[string]any{"id": 1}},
		})
		return err
	}())
	assert.Equal(t, []string{"Publisher", "authors", "disconnect"}, appErr.Path)
}

func TestToOneAcceptsOneOperation(t *testing.T) {
	p, g := newParser(t)
	_, err := p.ParseUpdate(g.Model("Product"), map[string]any{
		"category": map[string]any{"connect": map[string]any{"id": 1}, "disconnect": true},
	})
	appErr := invalid(t, err)
	assert.Equal(t, []string{"Product", "category"}, appErr.Path)

	_, err = p.ParseUpdate(g.Model("Product"), map[string]any{
		"category": map[string]any{"connect": []any{map[string]any{"id": 1}}},
	})
	invalid(t, err)
}

func TestCreateChecksRequiredValues(t *testing.T) {
	p, g := newParser(t)

	_, err := p.ParseCreate(g.Model("Author"), map[string]any{"name": "Ann", "email": "a@b"})
	appErr := invalid(t, err)
	assert.Equal(t, []string{"Author", "publisherId"}, appErr.Path)

	_, err = p.ParseCreate(g.Model("Author"), map[string]any{"name": "Ann", "email": "a@b", "publisherId": 1})
	require.NoError(t, err)

	// The enclosing relation supplies the key of a nested create.
	_, err = p.ParseCreate(g.Model("Publisher"), map[string]any{
		"name":    "Acme",
		"authors": map[string]any{"create": map[string]any{"name": "Ann", "email": "a@b"}},
	})
	require.NoError(t, err)

	_, err = p.ParseCreate(g.Model("Publisher"), map[string]any{
		"name":    "Acme",
		"authors": map[string]any{"create": map[string]any{"name": "Ann", "email": "a@b", "publisherId": 3}},
	})
	appErr = invalid(t, err)
	assert.Equal(t, []string{"Publisher", "authors", "create", "publisherId"}, appErr.Path)

	_, err = p.ParseCreate(g.Model("Publisher"), map[string]any{
		"name": "Acme",
		"authors": map[string]any{"create": map[string]any{
			"name": "Ann", "email": "a@b",
			"publisher": map[string]any{"connect": map[string]any{"id": 1}},
		}},
	})
	invalid(t, err)
}

func TestFieldAndRelationConflict(t *testing.T) {
	p, g := newParser(t)
	_, err := p.ParseUpdate(g.Model("Product"), map[string]any{
		"categoryId": 1,
		"category":   map[string]any{"connect": map[string]any{"id": 2}},
	})
	invalid(t, err)
}

func TestUnknownKeys(t *testing.T) {
	p, g := newParser(t)
	_, err := p.ParseUpdate(g.Model("Post"), map[string]any{"nope": 1})
	appErr := invalid(t, err)
	assert.Equal(t, []string{"Post", "nope"}, appErr.Path)

	_, err = p.ParseUpdate(g.Model("Post"), map[string]any{"tags": map[string]any{"attach": []any{}}})
	appErr = invalid(t, err)
	assert.Equal(t, []string{"Post", "tags", "attach"}, appErr.Path)

	_, err = p.ParseUpdate(g.Model("Post"), map[string]any{"tags": map[string]any{}})
	invalid(t, err)
}

func TestSelectors(t *testing.T) {
	p, g := newParser(t)
	sel, err := p.ParseSelector(g.Model("Enrollment"), map[string]any{"studentId": 1, "courseId": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, mutation.Selector{"studentId": int64(1), "courseId": int64(2)}, sel)

	_, err = p.ParseSelector(g.Model("Enrollment"), map[string]any{"studentId": 1})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindFieldIsNotUnique, appErr.Kind)

	_, err = p.ParseSelector(g.Model("Player"), map[string]any{"name": nil})
	invalid(t, err)
	_, err = p.ParseSelector(g.Model("Player"), map[string]any{})
	invalid(t, err)
	_, err = p.ParseSelector(g.Model("Player"), map[string]any{"id": "one"})
	invalid(t, err)
}

func TestNullableFields(t *testing.T) {
	p, g := newParser(t)
	in, err := p.ParseUpdate(g.Model("Post"), map[string]any{"authorId": nil})
	require.NoError(t, err)
	assert.Contains(t, in.Fields, "authorId")
	assert.Nil(t, in.Fields["authorId"])

	_, err = p.ParseUpdate(g.Model("Post"), map[string]any{"title": nil})
	invalid(t, err)
}

func TestMaxDepth(t *testing.T) {
	g := schematest.Blog(t)
	p := mutation.NewParser(g, 1)
	body := map[string]any{
		"name": "Acme",
		"authors": map[string]any{"create": map[string]any{
			"name": "Ann", "email": "a@b",
			"posts": map[string]any{"create": map[string]any{"title": "t"}},
		}},
	}
	_, err := p.ParseCreate(g.Model("Publisher"), body)
	invalid(t, err)

	_, err = mutation.NewParser(g, 2).ParseCreate(g.Model("Publisher"), body)
	require.NoError(t, err)
}
