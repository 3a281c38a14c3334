package schema

// Kind tags the variant a Field holds.
type Kind string

const (
	KindPrimitive    Kind = "primitive"
	KindGroup        Kind = "group"
	KindRelationship Kind = "relationship"
)

// FieldType is the value type of a primitive field.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeDate    FieldType = "date"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeText, TypeDate, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

// Field is a single node of a definition tree. Which of Type, Fields, and
// Ref/Many are meaningful depends on Kind.
type Field struct {
	Name string
	Kind Kind

	// primitive
	Type FieldType
	// group
	Fields []Field
	// relationship
	Ref  string
	Many bool

	Label    string
	Required bool
	RichText bool
}

// Definition is a named, ordered field tree for one list or item.
type Definition struct {
	Name   string
	Fields []Field
}

// Text, Date, Number and Boolean build primitive fields with a default label.
func Text(name string) Field    { return primitive(name, TypeText) }
func Date(name string) Field    { return primitive(name, TypeDate) }
func Number(name string) Field  { return primitive(name, TypeNumber) }
func Boolean(name string) Field { return primitive(name, TypeBoolean) }

func primitive(name string, t FieldType) Field {
	return Field{Name: name, Kind: KindPrimitive, Type: t, Label: Humanize(name)}
}

// Group builds a nested field.
func Group(name string, fields ...Field) Field {
	return Field{Name: name, Kind: KindGroup, Fields: fields, Label: Humanize(name)}
}

// Relationship builds a reference to the list named ref.
func Relationship(name, ref string, many bool) Field {
	return Field{Name: name, Kind: KindRelationship, Ref: ref, Many: many, Label: Humanize(name)}
}

// Require returns a copy of f marked required.
func (f Field) Require() Field {
	f.Required = true
	return f
}

// WithLabel returns a copy of f with label set.
func (f Field) WithLabel(label string) Field {
	f.Label = label
	return f
}

// Rich returns a copy of f flagged as rich text.
func (f Field) Rich() Field {
	f.RichText = true
	return f
}
