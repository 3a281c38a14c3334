package jangle

import "github.com/keithlinneman/jangle-cms/internal/schema"

// FromFile converts a loaded schema file into a Config.
func FromFile(f *schema.File) Config {
	if f == nil {
		return Config{}
	}
	cfg := Config{Lists: f.Lists, Items: f.Items, Prefix: f.Prefix}
	if f.API != nil {
		cfg.API = &APIConfig{Port: f.API.Port, Prefix: f.API.Prefix, Print: f.API.Print}
	}
	return cfg
}

// LoadFile reads a YAML, JSON or HCL schema file into a Config.
func LoadFile(path string) (Config, error) {
	f, err := schema.LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	return FromFile(f), nil
}

// Demo is the configuration served when no schema file is given: a single
// rich-text blog post list.
func Demo() Config {
	return Config{
		Lists: map[string]map[string]any{
			"Blog Post": {
				"name": map[string]any{
					"label":    "Title",
					"type":     "String",
					"required": true,
				},
				"content": map[string]any{
					"type":     "String",
					"required": true,
					"richText": true,
				},
			},
		},
	}
}
