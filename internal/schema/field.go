package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/expr-lang/expr/vm"
)

type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInt      FieldType = "int"
	TypeBigInt   FieldType = "bigint"
	TypeFloat    FieldType = "float"
	TypeDecimal  FieldType = "decimal"
	TypeBool     FieldType = "bool"
	TypeDateTime FieldType = "datetime"
	TypeJSON     FieldType = "json"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInt, TypeBigInt, TypeFloat, TypeDecimal, TypeBool, TypeDateTime, TypeJSON:
		return true
	}
	return false
}

// IsInteger reports whether values of this type are stored as int64.
func (t FieldType) IsInteger() bool {
	return t == TypeInt || t == TypeBigInt
}

type Field struct {
	Name          string
	Column        string
	Type          FieldType
	Optional      bool
	ID            bool // part of the primary key
	AutoIncrement bool
	Unique        bool
	ForeignKey    bool // local half of a foreign key, set at build

	Default any
	program *vm.Program
}

func (f *Field) IsRequired() bool {
	return !f.Optional
}

// HasDefault reports whether the backend or the engine can fill the field
// when a create omits it.
func (f *Field) HasDefault() bool {
	return f.AutoIncrement || f.Default != nil || f.program != nil
}

// DefaultValue evaluates the field's default. Expression defaults run on
// every call so `=now()` and `=uuid()` produce fresh values.
func (f *Field) DefaultValue() (any, error) {
	if f.program != nil {
		v, err := runDefault(f.program)
		if err != nil {
			return nil, fmt.Errorf("default for %s: %w", f.Name, err)
		}
		return f.Coerce(v)
	}
	if f.Default == nil {
		return nil, nil
	}
	return f.Coerce(f.Default)
}

// Coerce converts a decoded JSON/YAML value into the Go type the connectors
// expect for this field: int64, float64, string, bool, time.Time, or any for
// json. nil passes through; optionality is checked by the caller.
func (f *Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInt, TypeBigInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		case float64:
			if n == math.Trunc(n) {
				return int64(n), nil
			}
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		}
	case TypeFloat, TypeDecimal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			if x, err := n.Float64(); err == nil {
				return x, nil
			}
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeDateTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return parsed, nil
			}
		}
	case TypeJSON:
		return v, nil
	}
	return nil, fmt.Errorf("field %s expects %s, got %T", f.Name, f.Type, v)
}
