package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Schema is a tool parameter schema. The embedded jsonschema.Definition
// is what the model sees; the remaining fields are constraints that
// Definition has no room for and that only Validate enforces.
type Schema struct {
	jsonschema.Definition

	Format           string
	Default          any
	MinItems         *int
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum *float64

	// Nullable admits JSON null besides Type.
	Nullable bool

	fields map[string]*Schema
	items  *Schema
}

// JSONSchema renders the tree as a go-openai definition.
func (s *Schema) JSONSchema() jsonschema.Definition {
	d := s.Definition
	if len(s.fields) > 0 {
		d.Properties = make(map[string]jsonschema.Definition, len(s.fields))
		for name, f := range s.fields {
			d.Properties[name] = f.JSONSchema()
		}
	}
	if s.items != nil {
		items := s.items.JSONSchema()
		d.Items = &items
	}
	return d
}

// MarshalJSON renders the model-facing definition.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.JSONSchema())
}

func ptr[T any](v T) *T { return &v }

func scalar(t jsonschema.DataType, desc string) *Schema {
	return &Schema{Definition: jsonschema.Definition{Type: t, Description: desc}}
}

// Object builds a closed object schema.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{
		Definition: jsonschema.Definition{
			Type:                 jsonschema.Object,
			Required:             required,
			AdditionalProperties: false,
		},
		fields: props,
	}
}

// String builds a string schema.
func String(desc string) *Schema { return scalar(jsonschema.String, desc) }

// Number builds a number schema.
func Number(desc string) *Schema { return scalar(jsonschema.Number, desc) }

// Integer builds an integer schema.
func Integer(desc string) *Schema { return scalar(jsonschema.Integer, desc) }

// Date builds a YYYY-MM-DD string schema.
func Date(desc string) *Schema {
	s := scalar(jsonschema.String, desc)
	s.Format = "date"
	return s
}

// Enum builds a string schema restricted to values.
func Enum(desc string, values ...string) *Schema {
	s := scalar(jsonschema.String, desc)
	s.Enum = values
	return s
}

// Array builds an array schema.
func Array(desc string, items *Schema, minItems int) *Schema {
	s := scalar(jsonschema.Array, desc)
	s.items = items
	if minItems > 0 {
		s.MinItems = ptr(minItems)
	}
	return s
}

// fieldError locates a validation failure inside the input document.
type fieldError struct {
	path string
	msg  string
}

func (e *fieldError) Error() string {
	if e.path == "" {
		return e.msg
	}
	return e.path + ": " + e.msg
}

// Validate decodes raw, checks it against s and fills defaults. Empty
// input is treated as an empty object.
func (s *Schema) Validate(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &fieldError{msg: fmt.Sprintf("input is not valid JSON: %v", err)}
	}
	if dec.More() {
		return nil, &fieldError{msg: "input has trailing data"}
	}

	out, err := s.check("", v)
	if err != nil {
		return nil, err
	}
	obj, ok := out.(map[string]any)
	if !ok {
		return nil, &fieldError{msg: "input must be a JSON object"}
	}
	return obj, nil
}

func (s *Schema) check(path string, v any) (any, error) {
	if v == nil {
		if s.Nullable {
			return nil, nil
		}
		return nil, &fieldError{path: path, msg: fmt.Sprintf("expected %s, got null", s.Type)}
	}

	switch s.Type {
	case jsonschema.Object:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, typeErr(path, s.Type, v)
		}
		return s.checkObject(path, obj)
	case jsonschema.Array:
		arr, ok := v.([]any)
		if !ok {
			return nil, typeErr(path, s.Type, v)
		}
		if s.MinItems != nil && len(arr) < *s.MinItems {
			return nil, &fieldError{path: path, msg: fmt.Sprintf("expected at least %d items, got %d", *s.MinItems, len(arr))}
		}
		if s.items == nil {
			return arr, nil
		}
		for i, item := range arr {
			checked, err := s.items.check(fmt.Sprintf("%s[%d]", path, i), item)
			if err != nil {
				return nil, err
			}
			arr[i] = checked
		}
		return arr, nil
	case jsonschema.String, jsonschema.Number, jsonschema.Integer, jsonschema.Boolean:
		if !jsonschema.Validate(jsonschema.Definition{Type: s.Type}, v) {
			if f, ok := v.(float64); ok && s.Type == jsonschema.Integer {
				return nil, &fieldError{path: path, msg: fmt.Sprintf("expected an integer, got %v", f)}
			}
			return nil, typeErr(path, s.Type, v)
		}
		switch val := v.(type) {
		case string:
			return val, s.checkString(path, val)
		case float64:
			return val, s.checkNumber(path, val)
		}
		return v, nil
	default:
		return nil, &fieldError{path: path, msg: fmt.Sprintf("unsupported schema type %q", s.Type)}
	}
}

func (s *Schema) checkObject(path string, obj map[string]any) (any, error) {
	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			return nil, &fieldError{path: join(path, name), msg: "is required"}
		}
	}

	if s.AdditionalProperties == false {
		var unknown []string
		for name := range obj {
			if _, ok := s.fields[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, &fieldError{path: path, msg: "unknown field " + strings.Join(unknown, ", ")}
		}
	}

	for name, prop := range s.fields {
		val, ok := obj[name]
		if !ok {
			if prop.Default != nil {
				obj[name] = prop.Default
			}
			continue
		}
		checked, err := prop.check(join(path, name), val)
		if err != nil {
			return nil, err
		}
		obj[name] = checked
	}
	return obj, nil
}

func (s *Schema) checkString(path, str string) error {
	if len(s.Enum) > 0 {
		for _, allowed := range s.Enum {
			if str == allowed {
				return nil
			}
		}
		return &fieldError{path: path, msg: fmt.Sprintf("must be one of %s, got %q", strings.Join(s.Enum, ", "), str)}
	}
	if s.Format == "date" {
		if _, err := time.Parse("2006-01-02", str); err != nil {
			return &fieldError{path: path, msg: fmt.Sprintf("expected a YYYY-MM-DD date, got %q", str)}
		}
	}
	return nil
}

func (s *Schema) checkNumber(path string, f float64) error {
	if s.Minimum != nil && f < *s.Minimum {
		return &fieldError{path: path, msg: fmt.Sprintf("must be at least %v", *s.Minimum)}
	}
	if s.Maximum != nil && f > *s.Maximum {
		return &fieldError{path: path, msg: fmt.Sprintf("must be at most %v", *s.Maximum)}
	}
	if s.ExclusiveMinimum != nil && f <= *s.ExclusiveMinimum {
		return &fieldError{path: path, msg: fmt.Sprintf("must be greater than %v", *s.ExclusiveMinimum)}
	}
	return nil
}

func typeErr(path string, want jsonschema.DataType, got any) error {
	return &fieldError{path: path, msg: fmt.Sprintf("expected %s, got %s", want, jsonKind(got))}
}

func jsonKind(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
