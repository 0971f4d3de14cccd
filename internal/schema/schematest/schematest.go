// Package schematest holds the schema shared by the resolver, connector,
// seed and request boundary tests.
package schematest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

// BlogYAML covers every ownership kind: required and optional local keys,
// has-many and has-one foreign keys, an implicit and an explicit join model,
// and a one-directional relation.
const BlogYAML = `
models:
  - name: Publisher
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: name, type: string, unique: true}
    relations:
      - {name: authors, model: Author, many: true}

  - name: Author
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: name, type: string}
      - {name: email, type: string, unique: true}
      - {name: publisherId, type: int}
      - {name: createdAt, type: datetime, default: "=now()"}
    relations:
      - {name: publisher, model: Publisher, fields: [publisherId], references: [id]}
      - {name: posts, model: Post, many: true}
      - {name: profile, model: Profile, optional: true}

  - name: Profile
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: bio, type: string}
      - {name: authorId, type: int, unique: true, optional: true}
    relations:
      - {name: author, model: Author, optional: true, fields: [authorId], references: [id]}

  - name: Post
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: title, type: string}
      - {name: published, type: bool, default: false}
      - {name: authorId, type: int, optional: true}
    relations:
      - {name: author, model: Author, optional: true, fields: [authorId], references: [id]}
      - {name: tags, model: Tag, many: true}

  - name: Tag
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: name, type: string, unique: true}
    relations:
      - {name: posts, model: Post, many: true}

  - name: Player
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: name, type: string, unique: true}

  - name: KOFPlayer
    table: kof_players
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: nickname, type: string}
      - {name: playerId, type: int, optional: true}
    relations:
      - {name: player, model: Player, optional: true, fields: [playerId], references: [id]}

  - name: Category
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: name, type: string, unique: true}
    relations:
      - {name: products, model: Product, many: true}

  - name: Product
    fields:
      - {name: id, type: int, id: true, autoincrement: true}
      - {name: name, type: string}
      - {name: price, type: float, default: 0}
      - {name: categoryId, type: int, optional: true}
    relations:
      - {name: category, model: Category, optional: true, fields: [categoryId], references: [id]}

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
    relations:
      - {name: students, model: Student, many: true, through: Enrollment, local: course, foreign: student}

  - name: Enrollment
    primary_key: [studentId, courseId]
    fields:
      - {name: studentId, type: int}
      - {name: courseId, type: int}
      - {name: grade, type: string, optional: true}
    relations:
      - {name: student, model: Student, fields: [studentId], references: [id]}
      - {name: course, model: Course, fields: [courseId], references: [id]}
`

// Blog builds the graph of BlogYAML.
func Blog(t testing.TB) *schema.Graph {
	t.Helper()
	g, err := schema.Parse([]byte(BlogYAML))
	require.NoError(t, err)
	return g
}
