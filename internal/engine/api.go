package engine

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/jangle-cms/internal/httpmw"
	"github.com/keithlinneman/jangle-cms/internal/schema"
	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

type listResponse struct {
	Data   []Document `json:"data"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type schemaResponse struct {
	Lists []schema.Descriptor `json:"lists"`
	Items []schema.Descriptor `json:"items"`
}

func (a *App) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Route(a.apiRoot, func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "no such endpoint"})
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: r.Method + " not allowed"})
		})

		r.With(httpmw.Scope("schema")).Get("/schema", a.handleSchema)

		r.Route("/lists/{list}", func(r chi.Router) {
			r.Use(httpmw.Scope("lists"))
			r.Get("/", a.handleList)
			r.Post("/", a.handleCreate)
			r.Get("/{id}", a.handleGet)
			r.Put("/{id}", a.handleReplace)
			r.Patch("/{id}", a.handlePatch)
			r.Delete("/{id}", a.handleDelete)
			r.Get("/{id}/{field}", a.handleResolve)
		})

		items := r.With(httpmw.Scope("items"))
		items.Get("/items/{item}", a.handleGetItem)
		items.Put("/items/{item}", a.handlePutItem)
	})
	return r
}

func (a *App) observe(c *collection, op string, start time.Time, err error) {
	name := ""
	if c != nil {
		name = c.schema.Slug()
	}
	a.metrics.ObserveOp(name, op, resultOf(err), time.Since(start))
}

func (a *App) list(r *http.Request) (*collection, error) {
	key := chi.URLParam(r, "list")
	if c, ok := a.lists[key]; ok {
		return c, nil
	}
	return nil, xerrors.Newf("%w: list %q", ErrNotFound, key)
}

func (a *App) item(r *http.Request) (*collection, error) {
	key := chi.URLParam(r, "item")
	if c, ok := a.items[key]; ok {
		return c, nil
	}
	return nil, xerrors.Newf("%w: item %q", ErrNotFound, key)
}

func (a *App) handleSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, schemaResponse{Lists: describeAll(a.lists), Items: describeAll(a.items)})
}

func describeAll(cs map[string]*collection) []schema.Descriptor {
	out := make([]schema.Descriptor, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.schema.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func parsePage(r *http.Request) (Page, error) {
	var p Page
	q := r.URL.Query()
	for key, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Page{}, xerrors.Newf("%w: %s must be a non-negative integer", ErrBadRequest, key)
		}
		*dst = n
	}
	return p.normalize(), nil
}

func (a *App) handleList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp, c, err := a.listDocs(r)
	a.observe(c, OpList, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) listDocs(r *http.Request) (listResponse, *collection, error) {
	c, err := a.list(r)
	if err != nil {
		return listResponse{}, nil, err
	}
	page, err := parsePage(r)
	if err != nil {
		return listResponse{}, c, err
	}
	docs, total, err := a.store.List(r.Context(), c.schema.Slug(), page)
	if err != nil {
		return listResponse{}, c, err
	}
	return listResponse{Data: docs, Total: total, Limit: page.Limit, Offset: page.Offset}, c, nil
}

func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := a.list(r)
	var doc Document
	if err == nil {
		doc, err = a.store.Get(r.Context(), c.schema.Slug(), chi.URLParam(r, "id"))
	}
	a.observe(c, OpGet, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *App) handleCreate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	doc, c, err := a.create(r)
	a.observe(c, OpCreate, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

func (a *App) create(r *http.Request) (Document, *collection, error) {
	c, err := a.list(r)
	if err != nil {
		return Document{}, nil, err
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		return Document{}, c, err
	}
	data := stripReserved(body)
	if err := a.validateFull(r.Context(), c, data); err != nil {
		return Document{}, c, err
	}
	doc, err := a.store.Create(r.Context(), c.schema.Slug(), data)
	return doc, c, err
}

func (a *App) handleReplace(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	doc, c, err := a.write(r, false)
	a.observe(c, OpReplace, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *App) handlePatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	doc, c, err := a.write(r, true)
	a.observe(c, OpPatch, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// write handles PUT (replace) and PATCH (merge) on an existing document.
func (a *App) write(r *http.Request, merge bool) (Document, *collection, error) {
	c, err := a.list(r)
	if err != nil {
		return Document{}, nil, err
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	existing, err := a.store.Get(ctx, c.schema.Slug(), id)
	if err != nil {
		return Document{}, c, err
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		return Document{}, c, err
	}
	data := stripReserved(body)
	if merge {
		if err := c.schema.ValidatePartial(withoutNulls(data)); err != nil {
			return Document{}, c, err
		}
		data = mergeData(existing.Data, data)
	}
	if err := a.validateFull(ctx, c, data); err != nil {
		return Document{}, c, err
	}
	doc, err := a.store.Update(ctx, c.schema.Slug(), id, data)
	return doc, c, err
}

func (a *App) validateFull(ctx context.Context, c *collection, data map[string]any) error {
	if err := c.schema.Validate(data); err != nil {
		return err
	}
	return a.checkReferences(ctx, c, data)
}

// nulls in a patch mean "remove"; they are not values to type-check
func withoutNulls(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == nil {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			out[k] = withoutNulls(m)
			continue
		}
		out[k] = v
	}
	return out
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := a.list(r)
	if err == nil {
		err = a.delete(r.Context(), c, chi.URLParam(r, "id"))
	}
	a.observe(c, OpDelete, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) delete(ctx context.Context, c *collection, id string) error {
	if _, err := a.store.Get(ctx, c.schema.Slug(), id); err != nil {
		return err
	}
	refs, err := a.referrers(ctx, c.schema.Slug(), id)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return xerrors.Newf("%w: %s/%s is referenced by %s", ErrConflict, c.schema.Slug(), id, strings.Join(refs, ", "))
	}
	return a.store.Delete(ctx, c.schema.Slug(), id)
}

// handleResolve returns the documents a relationship field points at: a
// single document (or null) for one-to-one, an array for many.
func (a *App) handleResolve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := a.list(r)
	var out any
	if err == nil {
		out, err = a.resolve(r.Context(), c, chi.URLParam(r, "id"), chi.URLParam(r, "field"))
	}
	a.observe(c, OpResolve, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) resolve(ctx context.Context, c *collection, id, field string) (any, error) {
	var rel *schema.Relation
	for _, candidate := range c.schema.Relations() {
		if candidate.Path == field {
			rel = &candidate
			break
		}
	}
	if rel == nil {
		return nil, xerrors.Newf("%w: %s has no relationship %q", ErrNotFound, c.name, field)
	}
	doc, err := a.store.Get(ctx, c.schema.Slug(), id)
	if err != nil {
		return nil, err
	}
	target, _ := a.targetSlug(rel.Target)

	ids := referencedIDs(doc.Data, *rel)
	docs := make([]Document, 0, len(ids))
	for _, ref := range ids {
		d, err := a.store.Get(ctx, target, ref)
		if err != nil {
			// dangling ids are skipped
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		docs = append(docs, d)
	}
	if rel.Many {
		return docs, nil
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (a *App) handleGetItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := a.item(r)
	var doc Document
	if err == nil {
		doc, err = a.store.GetItem(r.Context(), c.schema.Slug())
	}
	a.observe(c, OpGet, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *App) handlePutItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := a.item(r)
	var doc Document
	if err == nil {
		var body map[string]any
		if err = decodeJSON(r, &body); err == nil {
			data := stripReserved(body)
			if err = a.validateFull(r.Context(), c, data); err == nil {
				doc, err = a.store.PutItem(r.Context(), c.schema.Slug(), data)
			}
		}
	}
	a.observe(c, OpReplace, start, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
