package jangle

import (
	"context"
	"io"
	"io/fs"

	"github.com/keithlinneman/jangle-cms/internal/adminui"
	"github.com/keithlinneman/jangle-cms/internal/engine"
	"github.com/keithlinneman/jangle-cms/internal/log"
	"github.com/keithlinneman/jangle-cms/internal/schema"
)

const DefaultPort = 3000

// APIConfig is the engine's api section. Print mirrors the engine's own
// startup banner switch and is always forced off.
type APIConfig struct {
	Port   int
	Prefix string
	Print  *bool
}

// Config is the caller's content configuration. Lists and Items map a
// display name to a raw field tree (see schema.Decode).
type Config struct {
	Lists  map[string]map[string]any
	Items  map[string]map[string]any
	API    *APIConfig
	Prefix string
}

// EngineConfig is what the engine receives: every field tree replaced by a
// compiled schema, same keys.
type EngineConfig struct {
	Lists map[string]*schema.Schema
	Items map[string]*schema.Schema
	API   APIConfig
}

// Engine starts the CMS from a transformed configuration.
type Engine interface {
	Start(ctx context.Context, cfg EngineConfig) (*engine.App, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, cfg EngineConfig) (*engine.App, error)

func (f EngineFunc) Start(ctx context.Context, cfg EngineConfig) (*engine.App, error) {
	return f(ctx, cfg)
}

// CMS returns the built-in engine persisting through store.
func CMS(store engine.Store, logger log.Logger, rec engine.Recorder) Engine {
	return EngineFunc(func(ctx context.Context, cfg EngineConfig) (*engine.App, error) {
		return engine.Start(ctx, engine.Config{
			Lists:   cfg.Lists,
			Items:   cfg.Items,
			Prefix:  NormalizePrefix(cfg.API.Prefix),
			Store:   store,
			Logger:  logger,
			Metrics: rec,
		})
	})
}

type Options struct {
	// Engine defaults to CMS with an in-memory store.
	Engine Engine

	// Assets is the static admin directory served under <prefix>/public.
	// Bundles, when set, takes precedence and may change at runtime.
	Assets    fs.FS
	Bundles   adminui.Source
	IndexFile string

	// Getenv resolves PORT; nil means no environment.
	Getenv func(string) string
	Logger log.Logger
	// Out receives the human-readable ready line; nil discards it.
	Out io.Writer

	// OnState observes lifecycle transitions.
	OnState func(State)
}

// State is the lifecycle of a Start call.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)
