package schema

// Document is the on-disk schema description (YAML or JSON).
type Document struct {
	Models []ModelDef `yaml:"models" json:"models"`
}

type ModelDef struct {
	Name       string        `yaml:"name" json:"name"`
	Table      string        `yaml:"table,omitempty" json:"table,omitempty"`
	PrimaryKey []string      `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	Unique     [][]string    `yaml:"unique,omitempty" json:"unique,omitempty"`
	Fields     []FieldDef    `yaml:"fields" json:"fields"`
	Relations  []RelationDef `yaml:"relations,omitempty" json:"relations,omitempty"`
}

type FieldDef struct {
	Name          string `yaml:"name" json:"name"`
	Type          string `yaml:"type" json:"type"`
	Column        string `yaml:"column,omitempty" json:"column,omitempty"`
	ID            bool   `yaml:"id,omitempty" json:"id,omitempty"`
	AutoIncrement bool   `yaml:"autoincrement,omitempty" json:"autoincrement,omitempty"`
	Unique        bool   `yaml:"unique,omitempty" json:"unique,omitempty"`
	Optional      bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
	Default       any    `yaml:"default,omitempty" json:"default,omitempty"` // literal, or "=expr"
}

type RelationDef struct {
	Name       string   `yaml:"name" json:"name"`
	Model      string   `yaml:"model" json:"model"`
	Many       bool     `yaml:"many,omitempty" json:"many,omitempty"`
	Optional   bool     `yaml:"optional,omitempty" json:"optional,omitempty"`
	Fields     []string `yaml:"fields,omitempty" json:"fields,omitempty"`
	References []string `yaml:"references,omitempty" json:"references,omitempty"`
	Through    string   `yaml:"through,omitempty" json:"through,omitempty"`
	Local      string   `yaml:"local,omitempty" json:"local,omitempty"`
	Foreign    string   `yaml:"foreign,omitempty" json:"foreign,omitempty"`
	Opposite   string   `yaml:"opposite,omitempty" json:"opposite,omitempty"`
}
