package jangle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/keithlinneman/jangle-cms/internal/schema"
)

func TestDemo(t *testing.T) {
	got, err := Transform(Demo())
	if err != nil {
		t.Fatalf("Transform(Demo()): %v", err)
	}
	post := got.Lists["Blog Post"]
	if post == nil || post.Slug() != "blog-post" {
		t.Fatalf("Blog Post missing or misrouted: %v", got.Lists)
	}
	want := []schema.Field{
		schema.Text("content").Rich().Require(),
		schema.Text("name").WithLabel("Title").Require(),
	}
	if diff := cmp.Diff(want, post.Definition().Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_RoundTripsIntoStart(t *testing.T) {
	p := filepath.Join(t.TempDir(), "basic.yaml")
	body := `
prefix: admin
api:
  port: 4200
  _print: true
lists:
  Person:
    name: { type: String, required: true }
  BlogPost:
    title: { type: String, required: true }
    author: { type: ObjectId, ref: Person, required: true }
`
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Prefix != "admin" || cfg.API == nil || cfg.API.Port != 4200 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if got := BaseURL(cfg, nil); got != "http://localhost:4200/admin" {
		t.Fatalf("BaseURL=%q", got)
	}
	ecfg, err := Transform(cfg)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	rels := ecfg.Lists["BlogPost"].Relations()
	if len(rels) != 1 || rels[0].Target != "Person" {
		t.Fatalf("relations=%+v", rels)
	}
}

func TestExampleFiles(t *testing.T) {
	for _, name := range []string{"basic.yaml", "core.hcl", "core.json"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadFile(filepath.Join("..", "..", "examples", name))
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			h, err := Start(context.Background(), cfg, Options{Assets: assets()})
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			_ = h.App.Close()
		})
	}
}

func TestExampleFiles_BasicMatchesDemo(t *testing.T) {
	cfg, err := LoadFile(filepath.Join("..", "..", "examples", "basic.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	fromFile, err := Transform(cfg)
	if err != nil {
		t.Fatalf("Transform(basic.yaml): %v", err)
	}
	demo, err := Transform(Demo())
	if err != nil {
		t.Fatalf("Transform(Demo()): %v", err)
	}
	want := demo.Lists["Blog Post"].Definition()
	got := fromFile.Lists["Blog Post"].Definition()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("basic.yaml drifted from Demo (-want +got):\n%s", diff)
	}
}
