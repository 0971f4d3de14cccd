package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/schema/schematest"
)

func TestClassify(t *testing.T) {
	g := schematest.Blog(t)

	assert.Equal(t, schema.Before, schema.Classify(g.Model("Author").Relation("publisher")))
	assert.Equal(t, schema.Before, schema.Classify(g.Model("Post").Relation("author")))
	assert.Equal(t, schema.After, schema.Classify(g.Model("Author").Relation("posts")))
	assert.Equal(t, schema.After, schema.Classify(g.Model("Author").Relation("profile")))
	assert.Equal(t, schema.After, schema.Classify(g.Model("Post").Relation("tags")))
	assert.Equal(t, "before", schema.Before.String())
	assert.Equal(t, "after", schema.After.String())
}

func names(level []*schema.Model) []string {
	out := make([]string, len(level))
	for i, m := range level {
		out[i] = m.Name
	}
	return out
}

func TestSeedOrderLevels(t *testing.T) {
	levels, err := schematest.Blog(t).SeedOrder()
	require.NoError(t, err)
	require.Len(t, levels, 2)

	// Optional keys never hold a model back.
	assert.Equal(t, []string{"Category", "Course", "KOFPlayer", "Player", "Post", "Product", "Profile", "Publisher", "Student", "Tag"}, names(levels[0]))
	assert.Equal(t, []string{"Author", "Enrollment", "_PostToTag"}, names(levels[1]))
}

func TestSeedOrderChains(t *testing.T) {
	g, err := schema.Parse([]byte(`
models:
  - name: Comment
    fields:
      - {name: id, type: int, id: true}
      - {name: postId, type: int}
    relations:
      - {name: post, model: Post, fields: [postId], references: [id]}
  - name: Post
    fields:
      - {name: id, type: int, id: true}
      - {name: blogId, type: int}
    relations:
      - {name: blog, model: Blog, fields: [blogId], references: [id]}
  - name: Blog
    fields:
      - {name: id, type: int, id: true}
      - {name: parentId, type: int}
    relations:
      - {name: parent, model: Blog, fields: [parentId], references: [id]}
`))
	require.NoError(t, err)

	levels, err := g.SeedOrder()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"Blog"}, names(levels[0]))
	assert.Equal(t, []string{"Post"}, names(levels[1]))
	assert.Equal(t, []string{"Comment"}, names(levels[2]))
}

func TestRequiredKeyCycleFailsBuild(t *testing.T) {
	_, err := schema.Parse([]byte(`
models:
  - name: Egg
    fields:
      - {name: id, type: int, id: true}
      - {name: chickenId, type: int}
    relations:
      - {name: chicken, model: Chicken, fields: [chickenId], references: [id]}
  - name: Chicken
    fields:
      - {name: id, type: int, id: true}
      - {name: eggId, type: int}
    relations:
      - {name: egg, model: Egg, fields: [eggId], references: [id]}
  - name: Nest
    fields:
      - {name: id, type: int, id: true}
`))
	var cycle *schema.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"Chicken", "Egg"}, cycle.Models)
}

func TestOptionalKeyBreaksCycle(t *testing.T) {
	g, err := schema.Parse([]byte(`
models:
  - name: Egg
    fields:
      - {name: id, type: int, id: true}
      - {name: chickenId, type: int}
    relations:
      - {name: chicken, model: Chicken, fields: [chickenId], references: [id]}
  - name: Chicken
    fields:
      - {name: id, type: int, id: true}
      - {name: eggId, type: int, optional: true}
    relations:
      - {name: egg, model: Egg, optional: true, fields: [eggId], references: [id]}
`))
	require.NoError(t, err)
	levels, err := g.SeedOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"Chicken"}, names(levels[0]))
	assert.Equal(t, []string{"Egg"}, names(levels[1]))
}
