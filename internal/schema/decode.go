package schema

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// attribute keys allowed on a field mapping that carries "type" or "ref"
var fieldAttributes = map[string]struct{}{
	"type":      {},
	"label":     {},
	"required":  {},
	"richText":  {},
	"rich_text": {},
	"ref":       {},
	"many":      {},
	"fields":    {},
}

// type tags accepted at the boundary, including the constructor names used
// by older schema files
var typeAliases = map[string]FieldType{
	"text":    TypeText,
	"string":  TypeText,
	"date":    TypeDate,
	"number":  TypeNumber,
	"boolean": TypeBoolean,
	"bool":    TypeBoolean,
}

const groupHint = `a group with a sub-field named type or ref needs "type": "group" and "fields"`

var relationTags = map[string]struct{}{
	"relationship":          {},
	"relation":              {},
	"objectid":              {},
	"schema.types.objectid": {},
}

// Decode converts a raw field tree into a Definition.
//
// A value may be a type tag ("text"), a mapping with "type" and metadata, a
// mapping with "ref" (relationship), a mapping of sub-fields (group), or a
// one-element list wrapping a relationship (many). Keys are visited in sorted
// order.
//
// A mapping with a "type" or "ref" key is always read as a single field, so a
// group with a sub-field named type or ref must be spelled out as
// {"type": "group", "fields": {...}}.
func Decode(name string, raw map[string]any) (Definition, error) {
	def := Definition{Name: strings.TrimSpace(name)}
	if def.Name == "" {
		return Definition{}, fmt.Errorf("%w: empty definition name", ErrInvalidName)
	}
	fields, err := decodeFields(def.Name, raw)
	if err != nil {
		return Definition{}, err
	}
	def.Fields = fields
	return def, nil
}

func decodeFields(path string, raw map[string]any) ([]Field, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		f, err := decodeField(path+"."+k, k, raw[k])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeField(path, name string, v any) (Field, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Field{}, fmt.Errorf("%w: empty field name at %s", ErrInvalidName, path)
	}

	switch typed := v.(type) {
	case string:
		return decodeTag(path, name, typed)
	case []any:
		if len(typed) != 1 {
			return Field{}, fmt.Errorf("%w: %s: list shorthand must wrap exactly one relationship", ErrInvalidAttribute, path)
		}
		inner, err := decodeField(path+"[]", name, typed[0])
		if err != nil {
			return Field{}, err
		}
		if inner.Kind != KindRelationship {
			return Field{}, fmt.Errorf("%w: %s: only relationships can be array-valued", ErrInvalidAttribute, path)
		}
		inner.Many = true
		return inner, nil
	case map[string]any:
		_, hasType := typed["type"]
		_, hasRef := typed["ref"]
		if hasType || hasRef {
			return decodeAttributes(path, name, typed)
		}
		sub, err := decodeFields(path, typed)
		if err != nil {
			return Field{}, err
		}
		return Field{Name: name, Kind: KindGroup, Fields: sub, Label: Humanize(name)}, nil
	case nil:
		return Field{}, fmt.Errorf("%w: %s: field has no definition", ErrInvalidAttribute, path)
	default:
		return Field{}, fmt.Errorf("%w: %s: unsupported definition %T", ErrInvalidAttribute, path, v)
	}
}

func decodeTag(path, name, tag string) (Field, error) {
	key := strings.ToLower(strings.TrimSpace(tag))
	if t, ok := typeAliases[key]; ok {
		return primitive(name, t), nil
	}
	if _, ok := relationTags[key]; ok {
		return Field{}, fmt.Errorf("%w: %s: relationship needs a ref", ErrInvalidAttribute, path)
	}
	return Field{}, fmt.Errorf("%w: %s: %q", ErrUnknownType, path, tag)
}

func decodeAttributes(path, name string, attrs map[string]any) (Field, error) {
	for k := range attrs {
		if _, ok := fieldAttributes[k]; !ok {
			return Field{}, fmt.Errorf("%w: %s: %q (%s)", ErrUnknownAttribute, path, k, groupHint)
		}
	}

	f := Field{Name: name, Label: Humanize(name)}

	tag := ""
	if raw, ok := attrs["type"]; ok {
		s, ok := raw.(string)
		if !ok {
			return Field{}, fmt.Errorf("%w: %s: type must be a string, got %T (%s)", ErrInvalidAttribute, path, raw, groupHint)
		}
		tag = strings.ToLower(strings.TrimSpace(s))
	}
	ref, hasRef := attrs["ref"]
	_, isRelTag := relationTags[tag]

	switch {
	case tag == "group":
		fields, ok := attrs["fields"].(map[string]any)
		if !ok {
			return Field{}, fmt.Errorf("%w: %s: group needs a fields mapping", ErrInvalidAttribute, path)
		}
		sub, err := decodeFields(path, fields)
		if err != nil {
			return Field{}, err
		}
		f.Kind = KindGroup
		f.Fields = sub
	case isRelTag || (tag == "" && hasRef):
		s, ok := ref.(string)
		if !hasRef || !ok || strings.TrimSpace(s) == "" {
			return Field{}, fmt.Errorf("%w: %s: relationship needs a ref", ErrInvalidAttribute, path)
		}
		f.Kind = KindRelationship
		f.Ref = strings.TrimSpace(s)
	default:
		t, ok := typeAliases[tag]
		if !ok {
			return Field{}, fmt.Errorf("%w: %s: %q", ErrUnknownType, path, tag)
		}
		if hasRef {
			return Field{}, fmt.Errorf("%w: %s: ref is only valid on relationships", ErrInvalidAttribute, path)
		}
		f.Kind = KindPrimitive
		f.Type = t
	}

	if _, ok := attrs["fields"]; ok && f.Kind != KindGroup {
		return Field{}, fmt.Errorf("%w: %s: fields is only valid on groups", ErrInvalidAttribute, path)
	}

	if raw, ok := attrs["label"]; ok {
		s, ok := raw.(string)
		if !ok {
			return Field{}, fmt.Errorf("%w: %s: label must be a string", ErrInvalidAttribute, path)
		}
		if s = strings.TrimSpace(s); s != "" {
			f.Label = s
		}
	}

	var err error
	if f.Required, err = boolAttr(path, attrs, "required"); err != nil {
		return Field{}, err
	}
	if f.Many, err = boolAttr(path, attrs, "many"); err != nil {
		return Field{}, err
	}
	if f.Many && f.Kind != KindRelationship {
		return Field{}, fmt.Errorf("%w: %s: many is only valid on relationships", ErrInvalidAttribute, path)
	}
	rich, err := boolAttr(path, attrs, "richText")
	if err != nil {
		return Field{}, err
	}
	richSnake, err := boolAttr(path, attrs, "rich_text")
	if err != nil {
		return Field{}, err
	}
	f.RichText = rich || richSnake
	if f.RichText && (f.Kind != KindPrimitive || f.Type != TypeText) {
		return Field{}, fmt.Errorf("%w: %s: richText is only valid on text fields", ErrInvalidAttribute, path)
	}
	return f, nil
}

func boolAttr(path string, attrs map[string]any, key string) (bool, error) {
	raw, ok := attrs[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s: %s must be a boolean, got %T", ErrInvalidAttribute, path, key, raw)
	}
	return b, nil
}

// Humanize turns a field or list key into a display label:
// "firstName" -> "First Name", "published_at" -> "Published At".
func Humanize(name string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	prevLower := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			flush()
		}
		cur = append(cur, r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	flush()

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
