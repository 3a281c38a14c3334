package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryStore_CopiesAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, _ := s.Create(ctx, "c", map[string]any{"n": 1, "nested": map[string]any{"k": "v"}})
	_, _ = s.Create(ctx, "c", map[string]any{"n": 2})
	_, _ = s.Create(ctx, "c", map[string]any{"n": 3})

	first.Data["nested"].(map[string]any)["k"] = "mutated"
	got, err := s.Get(ctx, "c", first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("store must not share data with callers")
	}

	docs, total, err := s.List(ctx, "c", Page{Limit: 2, Offset: 1})
	if err != nil || total != 3 || len(docs) != 2 {
		t.Fatalf("List err=%v total=%d len=%d", err, total, len(docs))
	}
	if docs[0].Data["n"] != json.Number("2") || docs[1].Data["n"] != json.Number("3") {
		t.Fatalf("unexpected order: %+v", docs)
	}

	if err := s.Delete(ctx, "c", docs[0].ID); err != nil {
		t.Fatal(err)
	}
	docs, total, _ = s.List(ctx, "c", Page{})
	if total != 2 || docs[1].Data["n"] != json.Number("3") {
		t.Fatalf("after delete total=%d docs=%+v", total, docs)
	}
	if docs, total, _ := s.List(ctx, "c", Page{Offset: 10}); total != 2 || len(docs) != 0 {
		t.Fatalf("offset past end total=%d len=%d", total, len(docs))
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Ping err=%v", err)
	}
	if _, err := s.Create(context.Background(), "c", nil); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Create err=%v", err)
	}
}

func TestMemoryStore_LargeIntegersExact(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// 2^53 + 1 has no float64 representation
	created, err := s.Create(ctx, "c", map[string]any{"big": json.Number("9007199254740993"), "small": 7})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "c", created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data["big"] != json.Number("9007199254740993") || got.Data["small"] != json.Number("7") {
		t.Fatalf("data=%#v", got.Data)
	}
	out, err := json.Marshal(got.Data)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"big":9007199254740993,"small":7}` {
		t.Fatalf("encoded=%s", out)
	}
}

func TestMergeData(t *testing.T) {
	base := map[string]any{"a": 1, "g": map[string]any{"x": 1, "y": 2}, "drop": true}
	patch := map[string]any{"g": map[string]any{"y": 3}, "drop": nil, "b": "new"}
	got := mergeData(base, patch)
	g := got["g"].(map[string]any)
	if got["a"] != 1 || g["x"] != 1 || g["y"] != 3 || got["b"] != "new" {
		t.Fatalf("merge=%+v", got)
	}
	if _, ok := got["drop"]; ok {
		t.Fatal("null must delete the key")
	}
	if base["g"].(map[string]any)["y"] != 2 {
		t.Fatal("base mutated")
	}
}
