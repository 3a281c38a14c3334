package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode_Shapes(t *testing.T) {
	raw := map[string]any{
		"name":    map[string]any{"type": "String", "required": true},
		"content": map[string]any{"type": "text", "richText": true},
		"published": "Date",
		"views":     "number",
		"draft":     "Boolean",
		"author":    map[string]any{"type": "ObjectId", "ref": "Person"},
		"tags":      []any{map[string]any{"ref": "Tag"}},
		"address": map[string]any{
			"street": "text",
			"zip":    map[string]any{"type": "text", "label": "Postal Code"},
		},
	}
	got, err := Decode("BlogPost", raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Definition{
		Name: "BlogPost",
		Fields: []Field{
			Group("address", Text("street"), Text("zip").WithLabel("Postal Code")),
			Relationship("author", "Person", false),
			Text("content").Rich(),
			Boolean("draft"),
			Text("name").Require(),
			Date("published"),
			Relationship("tags", "Tag", true),
			Number("views"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("definition mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_ExplicitGroup(t *testing.T) {
	got, err := Decode("Person", map[string]any{
		"contact": map[string]any{
			"type":   "group",
			"label":  "Contact details",
			"fields": map[string]any{"email": "text"},
		},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []Field{Group("contact", Text("email")).WithLabel("Contact details")}
	if diff := cmp.Diff(want, got.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_GroupWithTypeSubField(t *testing.T) {
	got, err := Decode("Page", map[string]any{
		"meta": map[string]any{
			"type":   "group",
			"fields": map[string]any{"type": "text", "ref": "text"},
		},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []Field{Group("meta", Text("ref"), Text("type"))}
	if diff := cmp.Diff(want, got.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}

	// the shorthand reads as a single text field with a stray attribute
	_, err = Decode("Page", map[string]any{
		"meta": map[string]any{"type": "text", "title": "text"},
	})
	if !errors.Is(err, ErrUnknownAttribute) {
		t.Fatalf("err=%v, want ErrUnknownAttribute", err)
	}
	if !strings.Contains(err.Error(), `"type": "group"`) {
		t.Fatalf("error does not point at the explicit group form: %v", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want error
	}{
		{"unknown type tag", map[string]any{"a": "uuid"}, ErrUnknownType},
		{"unknown type attr", map[string]any{"a": map[string]any{"type": "blob"}}, ErrUnknownType},
		{"unknown attribute", map[string]any{"a": map[string]any{"type": "text", "unique": true}}, ErrUnknownAttribute},
		{"relationship without ref", map[string]any{"a": map[string]any{"type": "ObjectId"}}, ErrInvalidAttribute},
		{"bare relationship tag", map[string]any{"a": "ObjectId"}, ErrInvalidAttribute},
		{"rich on number", map[string]any{"a": map[string]any{"type": "number", "richText": true}}, ErrInvalidAttribute},
		{"many on text", map[string]any{"a": map[string]any{"type": "text", "many": true}}, ErrInvalidAttribute},
		{"list of primitives", map[string]any{"a": []any{"text"}}, ErrInvalidAttribute},
		{"list of two", map[string]any{"a": []any{map[string]any{"ref": "X"}, map[string]any{"ref": "Y"}}}, ErrInvalidAttribute},
		{"required not bool", map[string]any{"a": map[string]any{"type": "text", "required": "yes"}}, ErrInvalidAttribute},
		{"nil field", map[string]any{"a": nil}, ErrInvalidAttribute},
		{"nested unknown", map[string]any{"g": map[string]any{"x": map[string]any{"type": "text", "bogus": 1}}}, ErrUnknownAttribute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("T", tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_EmptyName(t *testing.T) {
	if _, err := Decode("  ", map[string]any{"a": "text"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err=%v, want ErrInvalidName", err)
	}
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"name":         "Name",
		"firstName":    "First Name",
		"published_at": "Published At",
		"blog-post":    "Blog Post",
		"URL":          "URL",
		"":             "",
	}
	for in, want := range tests {
		if got := Humanize(in); got != want {
			t.Errorf("Humanize(%q)=%q, want %q", in, got, want)
		}
	}
}
