package adminui

import (
	"bytes"
	"html"
	"io/fs"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/jangle-cms/internal/cryptoutil"
	"github.com/keithlinneman/jangle-cms/internal/httpmw"
)

// Handler serves the admin bundle: static files below the public mount and
// the index document for every other GET/HEAD.
type Handler struct {
	opts Options
	// mount prefix, "" for root
	mount string
}

func New(opts *Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: *opts}, nil
}

// Mount registers <prefix>/public/* and the catch-all document route on r.
// prefix must already be normalized ("" for root, otherwise "/name").
func Mount(r chi.Router, prefix string, opts Options) (*Handler, error) {
	h, err := New(&opts)
	if err != nil {
		return nil, err
	}
	h.mount = prefix

	publicRoot := prefix + "/public"
	assets := httpmw.Scope("admin.assets")(http.StripPrefix(publicRoot, http.HandlerFunc(h.ServeAsset)))
	r.Handle(publicRoot, assets)
	r.Handle(publicRoot+"/*", assets)

	doc := httpmw.Scope("admin.document")(http.HandlerFunc(h.ServeDocument))
	if prefix != "" {
		r.Handle(prefix, doc)
	}
	r.Handle(prefix+"/*", doc)
	return h, nil
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

// ServeAsset serves a file from the active bundle. r.URL.Path is relative to
// the public mount.
func (h *Handler) ServeAsset(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	fsys, ok := h.opts.Source.Active()
	if !ok {
		h.serveMaintenance(w, r)
		return
	}
	file, found := resolveAsset(r.URL.Path, fsys)
	if !found {
		h.serveNotFound(w, r)
		return
	}
	if file == h.opts.IndexFile {
		h.serveIndex(w, r, fsys)
		return
	}
	if cc := cacheControlForFile(file, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	http.ServeFileFS(w, r, fsys, file)
}

// ServeDocument answers any navigation URL with the index document so the
// client-side router can take over.
func (h *Handler) ServeDocument(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	fsys, ok := h.opts.Source.Active()
	if !ok {
		h.serveMaintenance(w, r)
		return
	}
	h.serveIndex(w, r, fsys)
}

var (
	baseURLMeta = regexp.MustCompile(`(<meta\s+name="jangle-base-url"\s+content=")[^"]*(")`)
	baseHref    = regexp.MustCompile(`(<base\s+href=")[^"]*(")`)
)

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request, fsys fs.FS) {
	raw, err := fs.ReadFile(fsys, h.opts.IndexFile)
	if err != nil {
		h.opts.Logger.Error(r.Context(), err, "admin index missing from bundle", "file", h.opts.IndexFile)
		h.serveMaintenance(w, r)
		return
	}
	out := rewriteBaseURL(raw, h.opts.APIBase, h.mount)

	var mod time.Time
	if info, err := fs.Stat(fsys, h.opts.IndexFile); err == nil {
		mod = info.ModTime()
	}
	w.Header().Set("Cache-Control", h.opts.HTMLCacheControl)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// embedded bundles have no mod time, the etag covers the rewritten bytes
	w.Header().Set("ETag", cryptoutil.ETag(out))
	http.ServeContent(w, r, h.opts.IndexFile, mod, bytes.NewReader(out))
}

// rewriteBaseURL fills the jangle-base-url meta tag with the API base and
// points <base href> at the mount so relative asset URLs resolve from any
// depth.
func rewriteBaseURL(doc []byte, apiBase, mount string) []byte {
	doc = baseURLMeta.ReplaceAll(doc, []byte("${1}"+replacement(apiBase)+"${2}"))
	return baseHref.ReplaceAll(doc, []byte("${1}"+replacement(mount+"/")+"${2}"))
}

func replacement(v string) string {
	return strings.ReplaceAll(html.EscapeString(v), "$", "$$")
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")
	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if fsys, ok := h.opts.Source.Active(); ok && existsFile(fsys, h.opts.NotFoundFile) {
		serveFileWithStatus(w, r, http.StatusNotFound, fsys, h.opts.NotFoundFile)
		return
	}
	if existsFile(h.opts.FallbackFS, h.opts.NotFoundFile) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.NotFoundFile)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// http.ServeFileFS picks its own status; the first WriteHeader is replaced
// with the forced one.
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(b)
}

// serveFileWithStatus serves name under a synthetic URL so ServeFileFS's
// dot-dot and index.html redirect checks look at the file, not the request.
func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	u := *r.URL
	u.Path = "/" + name
	u.RawPath = ""
	r2 := r.Clone(r.Context())
	r2.URL = &u

	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	http.ServeFileFS(sw, r2, fsys, name)
}
