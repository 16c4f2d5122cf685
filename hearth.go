// Package hearth is an embeddable web server core. It routes requests
// through an ordered chain of extension hooks, memoizes rendering work
// in a single-flight response cache and pushes discovered sub-resources
// on HTTP/2 connections.
//
// The package wires the core pipeline to net/http; the protocol and
// TLS layers stay with the standard library (plus golang.org/x/net/http2
// for h2c setups).
package hearth

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/hearth-server/hearth/core"
)

// Config configures an embeddable server. The zero value serves nothing
// useful; set at least Root or a custom Loader.
type Config struct {
	// Root is the directory served by the default file resolver.
	Root string
	// Resolver overrides the default file resolver.
	Resolver core.Resolver
	// Loader overrides the default file loader.
	Loader core.Loader

	// VaryHeaders are the request headers that participate in the
	// request identity (e.g. "Accept-Language").
	VaryHeaders []string

	// Directives extends the built-in content directive set, e.g.
	// {"tmpl": templates.Directive(engine, root)}.
	Directives map[string]core.Handler

	// EvictionPolicy bounds the response cache. Nil keeps entries
	// until evicted explicitly.
	EvictionPolicy core.EvictionPolicy

	// PushPageBudget caps promises per primary response (default 8).
	PushPageBudget int
	// PushSessionBudget caps promises per connection (default 64).
	PushSessionBudget int
	// PushConcurrency caps concurrent candidate generations (default 4).
	PushConcurrency int
	// DisablePush turns the push engine off entirely.
	DisablePush bool

	// Logger to use. The global console logger is used if nil.
	Logger *zerolog.Logger
}

const defaultSessionBudget = 64

// Server is the embeddable server core. Register extensions through
// Registry before the first request; the registry freezes itself when
// serving starts.
type Server struct {
	registry      *core.Registry
	cache         *core.Cache
	dispatcher    *core.Dispatcher
	push          *core.Engine
	log           zerolog.Logger
	sessionBudget int
	disablePush   bool

	freeze sync.Once
}

// New assembles a server from cfg.
func New(cfg Config) *Server {
	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *cfg.Logger
	}

	resolver := cfg.Resolver
	loader := cfg.Loader
	if resolver == nil && cfg.Root != "" {
		resolver = core.FileResolver{Root: cfg.Root}
	}
	if loader == nil && cfg.Root != "" {
		loader = core.FileLoader{}
	}

	registry := core.NewRegistry()
	cache := core.NewCache(cfg.EvictionPolicy, logger)
	dispatcher := core.NewDispatcher(core.DispatcherConfig{
		Registry:    registry,
		Cache:       cache,
		Resolver:    resolver,
		Loader:      loader,
		Directives:  cfg.Directives,
		VaryHeaders: cfg.VaryHeaders,
		Logger:      &logger,
	})

	sessionBudget := cfg.PushSessionBudget
	if sessionBudget <= 0 {
		sessionBudget = defaultSessionBudget
	}

	return &Server{
		registry: registry,
		cache:    cache,
		dispatcher: dispatcher,
		push: core.NewEngine(core.EngineConfig{
			Dispatcher:  dispatcher,
			PageBudget:  cfg.PushPageBudget,
			Concurrency: cfg.PushConcurrency,
			Logger:      &logger,
		}),
		log:           logger,
		sessionBudget: sessionBudget,
		disablePush:   cfg.DisablePush,
	}
}

// Registry exposes the extension registry for startup registration.
func (s *Server) Registry() *core.Registry { return s.registry }

// Cache exposes the response cache, e.g. for an admin eviction hook.
func (s *Server) Cache() *core.Cache { return s.cache }

// Dispatcher exposes the pipeline dispatcher.
func (s *Server) Dispatcher() *core.Dispatcher { return s.dispatcher }

// ready freezes the registry after installing the built-in Post
// handlers. Runs once, before the first request is dispatched.
func (s *Server) ready() {
	s.freeze.Do(func() {
		if !s.registry.Frozen() {
			// compression runs after user Post handlers so header
			// injections still apply to the encoded response
			s.registry.Register(core.PhasePost, "", 1<<20, core.CompressionHandler())
			s.registry.Register(core.PhasePost, "", 1<<20, core.CacheStatusHandler())
			s.registry.Freeze()
		}
	})
}
