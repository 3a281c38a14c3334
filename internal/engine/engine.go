package engine

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-slug"

	"github.com/keithlinneman/jangle-cms/internal/log"
	"github.com/keithlinneman/jangle-cms/internal/schema"
	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

// Config is the input to Start. Lists and Items are keyed by display name.
type Config struct {
	Lists map[string]*schema.Schema
	Items map[string]*schema.Schema

	// Prefix is the normalized path ("" or "/name") the API is served
	// under; routes live at <Prefix>/api.
	Prefix string

	// Store defaults to a MemoryStore
	Store   Store
	Logger  log.Logger
	Metrics Recorder
}

type collection struct {
	name   string
	schema *schema.Schema
}

// App is a started engine: an http.Handler serving the JSON API.
type App struct {
	store   Store
	logger  log.Logger
	metrics Recorder
	router  *chi.Mux
	apiRoot string

	lists map[string]*collection // by slug
	items map[string]*collection // by slug
	// list name -> slug, for relationship targets
	listSlugs map[string]string
}

// Start checks the configuration, prepares the store, and builds the router.
func Start(ctx context.Context, cfg Config) (*App, error) {
	a := &App{
		store:     cfg.Store,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		apiRoot:   cfg.Prefix + "/api",
		lists:     make(map[string]*collection, len(cfg.Lists)),
		items:     make(map[string]*collection, len(cfg.Items)),
		listSlugs: make(map[string]string, len(cfg.Lists)),
	}
	if a.store == nil {
		a.store = NewMemoryStore()
	}
	if a.logger == nil {
		a.logger = log.Nop()
	}
	if a.metrics == nil {
		a.metrics = nopRecorder{}
	}

	if err := index(a.lists, cfg.Lists, "list"); err != nil {
		return nil, err
	}
	if err := index(a.items, cfg.Items, "item"); err != nil {
		return nil, err
	}
	for slugKey, c := range a.lists {
		a.listSlugs[c.name] = slugKey
	}
	if err := a.checkRelations(); err != nil {
		return nil, err
	}

	if err := a.store.Init(ctx); err != nil {
		return nil, xerrors.Wrap(err, "initialize store")
	}

	a.router = a.routes()
	a.logger.Info(ctx, "engine started", "lists", len(a.lists), "items", len(a.items))
	return a, nil
}

func index(dst map[string]*collection, src map[string]*schema.Schema, kind string) error {
	names := make([]string, 0, len(src))
	for n := range src {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		s := src[n]
		if s == nil {
			return xerrors.Newf("%s %q has no schema", kind, n)
		}
		if prev, dup := dst[s.Slug()]; dup {
			return xerrors.Newf("%w: %s %q and %q both route as %q", ErrDuplicateCollection, kind, prev.name, n, s.Slug())
		}
		dst[s.Slug()] = &collection{name: n, schema: s}
	}
	return nil
}

func (a *App) checkRelations() error {
	owners := make([]*collection, 0, len(a.lists)+len(a.items))
	for _, c := range a.lists {
		owners = append(owners, c)
	}
	for _, c := range a.items {
		owners = append(owners, c)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].name < owners[j].name })

	for _, c := range owners {
		for _, rel := range c.schema.Relations() {
			if _, ok := a.targetSlug(rel.Target); !ok {
				return xerrors.Newf("%w: %s.%s -> %q", ErrUnknownRelation, c.name, rel.Path, rel.Target)
			}
		}
	}
	return nil
}

// targetSlug resolves a relationship target by list name, then by slug.
func (a *App) targetSlug(target string) (string, bool) {
	if s, ok := a.listSlugs[target]; ok {
		return s, true
	}
	if s, err := slug.Normalize(target); err == nil {
		if _, ok := a.lists[s]; ok {
			return s, true
		}
	}
	return "", false
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.router.ServeHTTP(w, r) }

// Router is the root router; callers may mount additional routes on it.
func (a *App) Router() chi.Router { return a.router }

// APIRoot is the path the JSON API is mounted at, "/api" unless a prefix
// was configured.
func (a *App) APIRoot() string { return a.apiRoot }

func (a *App) Store() Store { return a.store }

// Ping reports whether the store is reachable.
func (a *App) Ping(ctx context.Context) error { return a.store.Ping(ctx) }

func (a *App) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
