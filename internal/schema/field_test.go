package schema_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teodevgroup/teo-sub005/internal/schema"
)

func TestCoerce(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		typ     schema.FieldType
		in      any
		want    any
		wantErr bool
	}{
		{schema.TypeInt, 3, int64(3), false},
		{schema.TypeInt, float64(4), int64(4), false},
		{schema.TypeInt, json.Number("5"), int64(5), false},
		{schema.TypeInt, 4.5, nil, true},
		{schema.TypeInt, "5", nil, true},
		{schema.TypeFloat, json.Number("1.25"), 1.25, false},
		{schema.TypeFloat, 2, float64(2), false},
		{schema.TypeString, "x", "x", false},
		{schema.TypeString, 1, nil, true},
		{schema.TypeBool, true, true, false},
		{schema.TypeBool, "true", nil, true},
		{schema.TypeDateTime, "2024-05-01T12:00:00Z", at, false},
		{schema.TypeDateTime, "yesterday", nil, true},
		{schema.TypeJSON, map[string]any{"a": 1}, map[string]any{"a": 1}, false},
		{schema.TypeInt, nil, nil, false},
	}
	for _, tt := range tests {
		f := &schema.Field{Name: "f", Type: tt.typ}
		got, err := f.Coerce(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%s %v", tt.typ, tt.in)
			continue
		}
		require.NoError(t, err, "%s %v", tt.typ, tt.in)
		assert.Equal(t, tt.want, got, "%s %v", tt.typ, tt.in)
	}
}

func TestDefaults(t *testing.T) {
	g, err := schema.Parse([]byte(`
models:
  - name: Token
    fields:
      - {name: id, type: string, id: true, default: "=uuid()"}
      - {name: issuedAt, type: datetime, default: "=now()"}
      - {name: uses, type: int, default: 0}
      - {name: scope, type: string, optional: true}
`))
	require.NoError(t, err)
	m := g.Model("Token")

	first, err := m.Field("id").DefaultValue()
	require.NoError(t, err)
	second, err := m.Field("id").DefaultValue()
	require.NoError(t, err)
	_, err = uuid.Parse(first.(string))
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)

	issued, err := m.Field("issuedAt").DefaultValue()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), issued.(time.Time), time.Minute)

	uses, err := m.Field("uses").DefaultValue()
	require.NoError(t, err)
	assert.Equal(t, int64(0), uses)

	assert.True(t, m.Field("uses").HasDefault())
	assert.False(t, m.Field("scope").HasDefault())
	assert.False(t, m.Field("scope").IsRequired())
}
