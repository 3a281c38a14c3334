package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-slug"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is an immutable, validated Definition with its compiled document
// validators.
type Schema struct {
	def     Definition
	slug    string
	full    *jsonschema.Schema
	partial *jsonschema.Schema
}

// New validates def and compiles it.
func New(def Definition) (*Schema, error) {
	def.Name = strings.TrimSpace(def.Name)
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, def.Name, err)
	}

	s, err := slug.Normalize(def.Name)
	if err != nil || s == "" {
		return nil, fmt.Errorf("%w: %q does not produce a url segment", ErrInvalidName, def.Name)
	}

	full, err := compile(def.Name, objectSchema(def.Fields, true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, def.Name, err)
	}
	partial, err := compile(def.Name+".partial", objectSchema(def.Fields, false))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, def.Name, err)
	}

	return &Schema{def: cloneDefinition(def), slug: s, full: full, partial: partial}, nil
}

// MustNew is New for definitions known at compile time.
func MustNew(def Definition) *Schema {
	s, err := New(def)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.def.Name }

// Slug is the URL segment the engine routes this schema under.
func (s *Schema) Slug() string { return s.slug }

// Definition returns a copy of the wrapped definition.
func (s *Schema) Definition() Definition { return cloneDefinition(s.def) }

// Validate checks doc against every constraint, required fields included.
func (s *Schema) Validate(doc map[string]any) error { return s.validate(s.full, doc) }

// ValidatePartial checks doc without enforcing required fields.
func (s *Schema) ValidatePartial(doc map[string]any) error { return s.validate(s.partial, doc) }

func (s *Schema) validate(compiled *jsonschema.Schema, doc map[string]any) error {
	if doc == nil {
		doc = map[string]any{}
	}
	// values must look like decoded JSON for the validator
	raw, err := json.Marshal(doc)
	if err != nil {
		return &ValidationError{Schema: s.def.Name, Issues: []Issue{{Message: err.Error()}}}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &ValidationError{Schema: s.def.Name, Issues: []Issue{{Message: err.Error()}}}
	}

	if err := compiled.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Schema: s.def.Name, Issues: collectIssues(ve)}
		}
		return &ValidationError{Schema: s.def.Name, Issues: []Issue{{Message: err.Error()}}}
	}
	return nil
}

// Relation is a relationship field found anywhere in the tree.
type Relation struct {
	// Path is the dotted field path from the document root.
	Path   string
	Target string
	Many   bool
}

// Relations lists every relationship field in definition order.
func (s *Schema) Relations() []Relation {
	var out []Relation
	var walk func(prefix string, fields []Field)
	walk = func(prefix string, fields []Field) {
		for _, f := range fields {
			path := f.Name
			if prefix != "" {
				path = prefix + "." + f.Name
			}
			switch f.Kind {
			case KindRelationship:
				out = append(out, Relation{Path: path, Target: f.Ref, Many: f.Many})
			case KindGroup:
				walk(path, f.Fields)
			}
		}
	}
	walk("", s.def.Fields)
	return out
}

// Field looks up a top-level field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.def.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func objectSchema(fields []Field, enforceRequired bool) map[string]any {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		props[f.Name] = fieldSchema(f, enforceRequired)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if enforceRequired && len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldSchema(f Field, enforceRequired bool) map[string]any {
	switch f.Kind {
	case KindGroup:
		return objectSchema(f.Fields, enforceRequired)
	case KindRelationship:
		id := map[string]any{"type": "string", "minLength": 1}
		if f.Many {
			return map[string]any{"type": "array", "items": id}
		}
		return id
	}
	switch f.Type {
	case TypeDate:
		return map[string]any{"type": "string", "format": "date-time"}
	case TypeNumber:
		return map[string]any{"type": "number"}
	case TypeBoolean:
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{"type": "string"}
	}
}

func compile(name string, doc map[string]any) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	url := slugOr(name) + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(url, bytes.NewReader(encoded)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func slugOr(name string) string {
	if s, err := slug.Normalize(name); err == nil && s != "" {
		return s
	}
	return "schema"
}

func cloneDefinition(d Definition) Definition {
	return Definition{Name: d.Name, Fields: cloneFields(d.Fields)}
}

func cloneFields(in []Field) []Field {
	if in == nil {
		return nil
	}
	out := make([]Field, len(in))
	for i, f := range in {
		f.Fields = cloneFields(f.Fields)
		out[i] = f
	}
	return out
}
