package schema

// Descriptor is the JSON shape of a schema served to the admin UI.
type Descriptor struct {
	Name   string            `json:"name"`
	Slug   string            `json:"slug"`
	Fields []FieldDescriptor `json:"fields"`
}

type FieldDescriptor struct {
	Name     string            `json:"name"`
	Label    string            `json:"label"`
	Kind     Kind              `json:"kind"`
	Type     FieldType         `json:"type,omitempty"`
	Ref      string            `json:"ref,omitempty"`
	Many     bool              `json:"many,omitempty"`
	Required bool              `json:"required"`
	RichText bool              `json:"richText,omitempty"`
	Fields   []FieldDescriptor `json:"fields,omitempty"`
}

func (s *Schema) Describe() Descriptor {
	return Descriptor{Name: s.def.Name, Slug: s.slug, Fields: describeFields(s.def.Fields)}
}

func describeFields(fields []Field) []FieldDescriptor {
	if len(fields) == 0 {
		return nil
	}
	out := make([]FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		out = append(out, FieldDescriptor{
			Name:     f.Name,
			Label:    f.Label,
			Kind:     f.Kind,
			Type:     f.Type,
			Ref:      f.Ref,
			Many:     f.Many,
			Required: f.Required,
			RichText: f.RichText,
			Fields:   describeFields(f.Fields),
		})
	}
	return out
}
