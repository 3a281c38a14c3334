package jangle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/keithlinneman/jangle-cms/internal/adminui"
	"github.com/keithlinneman/jangle-cms/internal/engine"
	"github.com/keithlinneman/jangle-cms/internal/log"
	"github.com/keithlinneman/jangle-cms/internal/webassets"
	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

var (
	// ErrNoApp is returned when an Engine reports success without an app.
	ErrNoApp = errors.New("engine returned no app")
	// ErrPrefixConflict is returned when the admin ui prefix would shadow
	// the API routes.
	ErrPrefixConflict = errors.New("admin ui prefix conflicts with the api")
)

// Handle is a started CMS.
type Handle struct {
	App     *engine.App
	UI      *adminui.Handler
	BaseURL string
	Prefix  string
	State   State
}

// Start transforms cfg, starts the engine, mounts the admin UI at the
// resolved prefix, and reports the base URL. Engine errors are returned
// as-is and leave nothing mounted.
func Start(ctx context.Context, cfg Config, opts Options) (*Handle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(ctx)
	}
	notify := func(s State) {
		if opts.OnState != nil {
			opts.OnState(s)
		}
	}
	notify(StateStarting)

	fail := func(err error, msg string) (*Handle, error) {
		notify(StateFailed)
		logger.Error(ctx, err, msg)
		return nil, err
	}

	ecfg, err := Transform(cfg)
	if err != nil {
		return fail(err, "invalid content configuration")
	}

	eng := opts.Engine
	if eng == nil {
		eng = CMS(nil, logger, nil)
	}
	app, err := eng.Start(ctx, ecfg)
	if err != nil {
		if app != nil {
			_ = app.Close()
		}
		return fail(err, "engine start failed")
	}
	if app == nil {
		return fail(ErrNoApp, "engine start failed")
	}

	prefix := ResolvePrefix(cfg)
	apiRoot := app.APIRoot()
	if prefix == apiRoot || strings.HasPrefix(prefix, apiRoot+"/") {
		_ = app.Close()
		return fail(xerrors.Newf("%w: admin ui prefix %q is inside the api at %q", ErrPrefixConflict, prefix, apiRoot), "mount admin ui")
	}

	ui, err := adminui.Mount(app.Router(), prefix, adminui.Options{
		Logger:     logger,
		Source:     assetSource(opts),
		FallbackFS: webassets.FallbackFS(),
		IndexFile:  opts.IndexFile,
		APIBase:    strings.TrimSuffix(apiRoot, "/api"),
	})
	if err != nil {
		_ = app.Close()
		return fail(err, "mount admin ui")
	}

	h := &Handle{
		App:     app,
		UI:      ui,
		BaseURL: BaseURL(cfg, opts.Getenv),
		Prefix:  prefix,
		State:   StateReady,
	}
	h.Announce(opts.Out)
	logger.Info(ctx, "cms started",
		"base_url", h.BaseURL,
		"prefix", prefix,
		"api_root", apiRoot,
		"lists", len(ecfg.Lists),
		"items", len(ecfg.Items),
	)
	notify(StateReady)
	return h, nil
}

// Announce writes the human-readable ready line to w. A nil w is a no-op.
func (h *Handle) Announce(w io.Writer) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "Jangle CMS ready at %s\n", h.BaseURL)
}

func assetSource(opts Options) adminui.Source {
	if opts.Bundles != nil {
		return opts.Bundles
	}
	var fsys fs.FS = opts.Assets
	if fsys == nil {
		fsys = webassets.PublicFS()
	}
	return adminui.Static(fsys)
}
