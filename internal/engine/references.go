package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/keithlinneman/jangle-cms/internal/schema"
)

// referenceError is a validation failure that also matches ErrUnknownReference.
type referenceError struct {
	*schema.ValidationError
}

func (e *referenceError) Unwrap() []error {
	return []error{e.ValidationError, ErrUnknownReference}
}

// lookupPath walks a dotted path through nested objects.
func lookupPath(data map[string]any, path string) (any, bool) {
	cur := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// referencedIDs returns the ids stored at a relationship path.
func referencedIDs(data map[string]any, rel schema.Relation) []string {
	v, ok := lookupPath(data, rel.Path)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, el := range t {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}

// checkReferences verifies every relationship id in data names an existing
// document in the target list.
func (a *App) checkReferences(ctx context.Context, c *collection, data map[string]any) error {
	var issues []schema.Issue
	for _, rel := range c.schema.Relations() {
		target, _ := a.targetSlug(rel.Target)
		for _, id := range referencedIDs(data, rel) {
			if _, err := a.store.Get(ctx, target, id); err != nil {
				if errors.Is(err, ErrNotFound) {
					issues = append(issues, schema.Issue{
						Location: "/" + strings.ReplaceAll(rel.Path, ".", "/"),
						Message:  fmt.Sprintf("%s %q does not exist", rel.Target, id),
					})
					continue
				}
				return err
			}
		}
	}
	if len(issues) > 0 {
		return &referenceError{&schema.ValidationError{Schema: c.name, Issues: issues}}
	}
	return nil
}

// referrers lists "<list>/<id>" for documents that point at id in the list
// identified by targetSlug.
func (a *App) referrers(ctx context.Context, targetSlug, id string) ([]string, error) {
	slugs := make([]string, 0, len(a.lists))
	for s := range a.lists {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)

	var out []string
	for _, s := range slugs {
		c := a.lists[s]
		var rels []schema.Relation
		for _, rel := range c.schema.Relations() {
			if t, _ := a.targetSlug(rel.Target); t == targetSlug {
				rels = append(rels, rel)
			}
		}
		if len(rels) == 0 {
			continue
		}
		for page := (Page{Limit: maxPageLimit}); ; page.Offset += page.Limit {
			docs, total, err := a.store.List(ctx, s, page)
			if err != nil {
				return nil, err
			}
			for _, d := range docs {
				for _, rel := range rels {
					for _, ref := range referencedIDs(d.Data, rel) {
						if ref == id {
							out = append(out, s+"/"+d.ID)
						}
					}
				}
			}
			if page.Offset+len(docs) >= total || len(docs) == 0 {
				break
			}
		}
	}

	itemSlugs := make([]string, 0, len(a.items))
	for s := range a.items {
		itemSlugs = append(itemSlugs, s)
	}
	sort.Strings(itemSlugs)
	for _, s := range itemSlugs {
		var doc *Document
		for _, rel := range a.items[s].schema.Relations() {
			if t, _ := a.targetSlug(rel.Target); t != targetSlug {
				continue
			}
			if doc == nil {
				d, err := a.store.GetItem(ctx, s)
				if errors.Is(err, ErrNotFound) {
					break
				}
				if err != nil {
					return nil, err
				}
				doc = &d
			}
			for _, ref := range referencedIDs(doc.Data, rel) {
				if ref == id {
					out = append(out, "items/"+s)
				}
			}
		}
	}
	return out, nil
}
