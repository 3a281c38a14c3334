package jangle

import (
	"errors"
	"sort"

	"github.com/keithlinneman/jangle-cms/internal/schema"
	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

var ErrDuplicateName = errors.New("duplicate content type name")

// Transform compiles every list and item field tree into a schema and forces
// the engine banner off. Relationship targets are left to the engine.
func Transform(cfg Config) (EngineConfig, error) {
	out := EngineConfig{}
	if cfg.API != nil {
		out.API = *cfg.API
	}
	disabled := false
	out.API.Print = &disabled

	for name := range cfg.Items {
		if _, ok := cfg.Lists[name]; ok {
			return EngineConfig{}, xerrors.Newf("%w: %q is both a list and an item", ErrDuplicateName, name)
		}
	}

	var err error
	if out.Lists, err = compileAll("list", cfg.Lists); err != nil {
		return EngineConfig{}, err
	}
	if out.Items, err = compileAll("item", cfg.Items); err != nil {
		return EngineConfig{}, err
	}
	return out, nil
}

func compileAll(kind string, raw map[string]map[string]any) (map[string]*schema.Schema, error) {
	names := make([]string, 0, len(raw))
	for n := range raw {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make(map[string]*schema.Schema, len(raw))
	bySlug := make(map[string]string, len(raw))
	for _, name := range names {
		def, err := schema.Decode(name, raw[name])
		if err != nil {
			return nil, xerrors.Wrapf(err, "%s %q", kind, name)
		}
		s, err := schema.New(def)
		if err != nil {
			return nil, xerrors.Wrapf(err, "%s %q", kind, name)
		}
		if prev, dup := bySlug[s.Slug()]; dup {
			return nil, xerrors.Newf("%w: %s %q and %q both route as %q", ErrDuplicateName, kind, prev, name, s.Slug())
		}
		bySlug[s.Slug()] = name
		out[name] = s
	}
	return out, nil
}
