package schema

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Registry errors
var ErrUnknownSchema = errors.New("unknown schema")

// Kind identifies the expected shape of a field value.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindObject
)

// Normalizer canonicalizes a string field value. It must be idempotent:
// applying it to an already-canonical value returns the value unchanged.
type Normalizer func(string) (string, error)

// Field describes a single declared field of a schema.
type Field struct {
	Name     string
	Required bool
	Kind     Kind

	// Enum restricts a string field to a fixed set of values
	// (case-insensitive).
	Enum []string

	// Normalizer is applied to string fields after the kind check.
	Normalizer Normalizer

	// Elem describes the elements of a KindList field.
	Elem *Field

	// Object describes the fields of a KindObject field.
	Object *Schema
}

// Schema is an immutable, declarative validation contract for one
// document type. Schemas are defined at startup and shared read-only
// across all validation calls.
type Schema struct {
	Name   string
	Strict bool
	Fields []Field
}

// FieldError is a single field-level violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in a single validation
// pass, in field declaration order. It is never raised for the first
// failure alone.
type ValidationError struct {
	Schema string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("schema %q: %s", e.Schema, strings.Join(msgs, "; "))
}

// Validate checks doc against the schema and returns a normalized copy
// of it. The input document is never mutated. All violations are
// collected; the returned error is a *ValidationError listing every one
// of them.
func (s *Schema) Validate(doc map[string]any) (map[string]any, error) {
	out, errs := s.validate("", doc)
	if len(errs) > 0 {
		return nil, &ValidationError{Schema: s.Name, Fields: errs}
	}
	return out, nil
}

func (s *Schema) validate(prefix string, doc map[string]any) (map[string]any, []FieldError) {
	out := make(map[string]any, len(doc))
	var errs []FieldError

	declared := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = true
		path := joinPath(prefix, f.Name)

		v, ok := doc[f.Name]
		if !ok {
			if f.Required {
				errs = append(errs, FieldError{path, "required field missing"})
			}
			continue
		}

		normalized, ferrs := checkValue(path, &f, v)
		if len(ferrs) > 0 {
			errs = append(errs, ferrs...)
			continue
		}
		out[f.Name] = normalized
	}

	// Undeclared fields pass through unless the schema is strict.
	extra := make([]string, 0)
	for k := range doc {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		if s.Strict {
			errs = append(errs, FieldError{joinPath(prefix, k), "unknown field"})
			continue
		}
		out[k] = doc[k]
	}

	return out, errs
}

func checkValue(path string, f *Field, v any) (any, []FieldError) {
	switch f.Kind {
	case KindAny:
		return v, nil

	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, []FieldError{{path, "expected string, got " + typeName(v)}}
		}
		if len(f.Enum) > 0 && !enumContains(f.Enum, s) {
			return nil, []FieldError{{path, fmt.Sprintf("value %q not one of %s", s, strings.Join(f.Enum, ", "))}}
		}
		if f.Normalizer != nil {
			n, err := f.Normalizer(s)
			if err != nil {
				return nil, []FieldError{{path, err.Error()}}
			}
			s = n
		}
		return s, nil

	case KindInt:
		switch n := v.(type) {
		case int, int32, int64:
			return v, nil
		case float64:
			// JSON numbers decode as float64.
			if n == math.Trunc(n) {
				return v, nil
			}
		}
		return nil, []FieldError{{path, "expected integer, got " + typeName(v)}}

	case KindFloat:
		switch v.(type) {
		case float64, float32, int, int64:
			return v, nil
		}
		return nil, []FieldError{{path, "expected number, got " + typeName(v)}}

	case KindBool:
		if _, ok := v.(bool); !ok {
			return nil, []FieldError{{path, "expected bool, got " + typeName(v)}}
		}
		return v, nil

	case KindList:
		items, ok := v.([]any)
		if !ok {
			return nil, []FieldError{{path, "expected list, got " + typeName(v)}}
		}
		if f.Elem == nil {
			return v, nil
		}
		out := make([]any, len(items))
		var errs []FieldError
		for i, item := range items {
			n, ferrs := checkValue(fmt.Sprintf("%s[%d]", path, i), f.Elem, item)
			if len(ferrs) > 0 {
				errs = append(errs, ferrs...)
				continue
			}
			out[i] = n
		}
		if len(errs) > 0 {
			return nil, errs
		}
		return out, nil

	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, []FieldError{{path, "expected object, got " + typeName(v)}}
		}
		out, errs := f.Object.validate(path, m)
		if len(errs) > 0 {
			return nil, errs
		}
		return out, nil
	}

	return v, nil
}

func enumContains(enum []string, v string) bool {
	for _, e := range enum {
		if strings.EqualFold(e, v) {
			return true
		}
	}
	return false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, float32:
		return "number"
	case int, int32, int64:
		return "integer"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// Registry maps event/document-type names to schemas. It is populated
// before first use and treated as read-only afterwards.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema under its name.
func (r *Registry) Register(s *Schema) error {
	if s.Name == "" {
		return errors.New("schema name is required")
	}
	if _, ok := r.schemas[s.Name]; ok {
		return fmt.Errorf("schema %q already registered", s.Name)
	}
	r.schemas[s.Name] = s
	return nil
}

// MustRegister is Register that panics on error, for startup wiring.
func (r *Registry) MustRegister(s *Schema) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Validate validates doc against the named schema.
func (r *Registry) Validate(doc map[string]any, name string) (map[string]any, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
	return s.Validate(doc)
}
