package engine

import (
	"bytes"
	"encoding/json"
	"time"
)

// Document is one stored list entry or item value.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"-"`
	Data       map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Page bounds a List call.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// keys managed by the store, stripped from client payloads
var reservedKeys = []string{"id", "createdAt", "updatedAt"}

func stripReserved(data map[string]any) map[string]any {
	out := cloneData(data)
	for _, k := range reservedKeys {
		delete(out, k)
	}
	return out
}

func cloneData(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneData(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// mergeData overlays patch onto base; nested objects merge, everything else
// replaces. A null in patch removes the key.
func mergeData(base, patch map[string]any) map[string]any {
	out := cloneData(base)
	for k, pv := range patch {
		if pv == nil {
			delete(out, k)
			continue
		}
		pm, pIsMap := pv.(map[string]any)
		bm, bIsMap := out[k].(map[string]any)
		if pIsMap && bIsMap {
			out[k] = mergeData(bm, pm)
			continue
		}
		out[k] = cloneValue(pv)
	}
	return out
}

// normalizeData turns typed Go values into their decoded-JSON form so every
// Store hands back the same shapes. Numbers come back as json.Number.
func normalizeData(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return decodeData(raw)
}

func decodeData(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
