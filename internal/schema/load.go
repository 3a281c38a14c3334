package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported schema file format")

// File is a schema configuration as written on disk, before decoding.
type File struct {
	Lists  map[string]map[string]any `json:"lists,omitempty" yaml:"lists,omitempty"`
	Items  map[string]map[string]any `json:"items,omitempty" yaml:"items,omitempty"`
	API    *FileAPI                  `json:"api,omitempty" yaml:"api,omitempty"`
	Prefix string                    `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

type FileAPI struct {
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Print  *bool  `json:"_print,omitempty" yaml:"_print,omitempty"`
}

// LoadFile reads a schema file, choosing the decoder from the extension.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	case ".hcl":
		return ParseHCL(path, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ParseYAML decodes a YAML schema file. Unknown top-level keys and
// duplicate mapping keys are errors.
func ParseYAML(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml schema: %w", err)
	}
	return &f, nil
}

// ParseJSON decodes a JSON schema file. Unknown top-level keys and
// duplicate object keys are errors.
func ParseJSON(data []byte) (*File, error) {
	if err := checkDuplicateKeys(json.NewDecoder(bytes.NewReader(data))); err != nil {
		return nil, fmt.Errorf("parse json schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse json schema: %w", err)
	}
	return &f, nil
}

func checkDuplicateKeys(dec *json.Decoder) error {
	var walk func(path string) error
	walk = func(path string) error {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			return nil
		}
		switch delim {
		case '{':
			seen := map[string]struct{}{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := kt.(string)
				if _, dup := seen[key]; dup {
					return fmt.Errorf("duplicate key %q at %s", key, path)
				}
				seen[key] = struct{}{}
				if err := walk(path + "/" + key); err != nil {
					return err
				}
			}
		case '[':
			for i := 0; dec.More(); i++ {
				if err := walk(fmt.Sprintf("%s/%d", path, i)); err != nil {
					return err
				}
			}
		}
		// closing delimiter
		_, err = dec.Token()
		return err
	}
	return walk("")
}

type hclSchemaFile struct {
	Prefix *string        `hcl:"prefix,optional"`
	API    *hclAPI        `hcl:"api,block"`
	Lists  []hclTypeBlock `hcl:"list,block"`
	Items  []hclTypeBlock `hcl:"item,block"`
}

type hclAPI struct {
	Port   *int    `hcl:"port,optional"`
	Prefix *string `hcl:"prefix,optional"`
	Print  *bool   `hcl:"print,optional"`
}

type hclTypeBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// ParseHCL decodes an HCL schema file:
//
//	api { port = 3000 }
//	list "Person" {
//	  name = { type = "text", required = true }
//	}
//	item "Settings" { title = "text" }
func ParseHCL(filename string, data []byte) (*File, error) {
	parsed, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse hcl schema %s: %w", filename, diags)
	}
	var raw hclSchemaFile
	if diags := gohcl.DecodeBody(parsed.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("decode hcl schema %s: %w", filename, diags)
	}

	f := &File{}
	if raw.Prefix != nil {
		f.Prefix = *raw.Prefix
	}
	if raw.API != nil {
		f.API = &FileAPI{Print: raw.API.Print}
		if raw.API.Port != nil {
			f.API.Port = *raw.API.Port
		}
		if raw.API.Prefix != nil {
			f.API.Prefix = *raw.API.Prefix
		}
	}

	var err error
	if f.Lists, err = hclTypeBlocks("list", raw.Lists); err != nil {
		return nil, fmt.Errorf("decode hcl schema %s: %w", filename, err)
	}
	if f.Items, err = hclTypeBlocks("item", raw.Items); err != nil {
		return nil, fmt.Errorf("decode hcl schema %s: %w", filename, err)
	}
	return f, nil
}

func hclTypeBlocks(kind string, blocks []hclTypeBlock) (map[string]map[string]any, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]any, len(blocks))
	for _, b := range blocks {
		if _, dup := out[b.Name]; dup {
			return nil, fmt.Errorf("duplicate %s block %q", kind, b.Name)
		}
		attrs, diags := b.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s %q: %w", kind, b.Name, diags)
		}
		fields := make(map[string]any, len(attrs))
		for name, attr := range attrs {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("%s %q field %q: %w", kind, b.Name, name, diags)
			}
			native, err := ctyToNative(v)
			if err != nil {
				return nil, fmt.Errorf("%s %q field %q: %w", kind, b.Name, name, err)
			}
			fields[name] = native
		}
		out[b.Name] = fields
	}
	return out, nil
}

func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, el := it.Element()
			n, err := ctyToNative(el)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, el := it.Element()
			n, err := ctyToNative(el)
			if err != nil {
				return nil, fmt.Errorf("in %q: %w", k.AsString(), err)
			}
			out[k.AsString()] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
