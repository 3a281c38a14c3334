package schema

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks the structure of a definition tree.
func (d Definition) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Fields, validation.Required, validation.By(uniqueNames)),
	)
}

// Validate checks one field and, for groups, its sub-fields.
func (f Field) Validate() error {
	isGroup := f.Kind == KindGroup
	isRel := f.Kind == KindRelationship
	isText := f.Kind == KindPrimitive && f.Type == TypeText

	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required),
		validation.Field(&f.Kind, validation.Required, validation.In(KindPrimitive, KindGroup, KindRelationship)),
		validation.Field(&f.Type,
			validation.When(f.Kind == KindPrimitive, validation.Required, validation.By(validType)).
				Else(validation.Empty)),
		validation.Field(&f.Fields,
			validation.When(isGroup, validation.Required, validation.By(uniqueNames)).
				Else(validation.Empty)),
		validation.Field(&f.Ref, validation.When(isRel, validation.Required).Else(validation.Empty)),
		validation.Field(&f.Many, validation.When(!isRel, validation.Empty)),
		validation.Field(&f.RichText, validation.When(!isText, validation.Empty)),
	)
}

func validType(value any) error {
	t, _ := value.(FieldType)
	if !t.valid() {
		return validation.NewError("schema_type_invalid", fmt.Sprintf("unsupported type %q", string(t)))
	}
	return nil
}

func uniqueNames(value any) error {
	fields, _ := value.([]Field)
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return validation.NewError("schema_field_duplicate", fmt.Sprintf("duplicate field %q", f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Issue is a single failed constraint inside a document.
type Issue struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// ValidationError reports every constraint a document failed against a schema.
type ValidationError struct {
	Schema string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s: %s", e.Schema, ErrValidation.Error())
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		loc := is.Location
		if loc == "" {
			loc = "/"
		}
		parts = append(parts, loc+": "+is.Message)
	}
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// leaf causes carry the useful messages; interior nodes only say "doesn't validate"
func collectIssues(err *jsonschema.ValidationError) []Issue {
	var out []Issue
	var walk func(*jsonschema.ValidationError)
	walk = func(n *jsonschema.ValidationError) {
		if n == nil {
			return
		}
		if len(n.Causes) == 0 {
			out = append(out, Issue{
				Location: strings.TrimSpace(n.InstanceLocation),
				Message:  strings.TrimSpace(n.Message),
			})
			return
		}
		for _, c := range n.Causes {
			walk(c)
		}
	}
	walk(err)
	return out
}
