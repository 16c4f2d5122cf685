package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// Dispatcher drives one request through the pipeline phases:
// Prime, path resolution, Pre, cache lookup, Present (miss only), Post.
type Dispatcher struct {
	registry   *Registry
	cache      *Cache
	resolver   Resolver
	loader     Loader
	directives map[string]Handler
	scanners   map[string]Scanner
	vary       []string
	log        zerolog.Logger
}

// DispatcherConfig configures a Dispatcher. Registry and Cache are
// required; everything else has working defaults.
type DispatcherConfig struct {
	Registry *Registry
	Cache    *Cache
	// Resolver maps URL paths to targets. Nil uses the path itself.
	Resolver Resolver
	// Loader produces raw content for a target. Nil means content can
	// only come from Pre handlers (pure gateway setups).
	Loader Loader
	// Directives extends the built-in directive set.
	Directives map[string]Handler
	// Scanners keyed by media type; nil uses DefaultScanners.
	Scanners map[string]Scanner
	// VaryHeaders are the request headers that participate in the
	// request identity.
	VaryHeaders []string
	Logger      *zerolog.Logger
}

// NewDispatcher creates a dispatcher. It panics if Registry or Cache is
// missing, since a dispatcher cannot operate without them.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Registry == nil || cfg.Cache == nil {
		panic("core: dispatcher needs a registry and a cache")
	}
	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *cfg.Logger
	}
	directives := BuiltinDirectives()
	for name, h := range cfg.Directives {
		directives[name] = h
	}
	scanners := cfg.Scanners
	if scanners == nil {
		scanners = DefaultScanners()
	}
	return &Dispatcher{
		registry:   cfg.Registry,
		cache:      cfg.Cache,
		resolver:   cfg.Resolver,
		loader:     cfg.Loader,
		directives: directives,
		scanners:   scanners,
		vary:       cfg.VaryHeaders,
		log:        logger,
	}
}

// Cache returns the dispatcher's response cache.
func (d *Dispatcher) Cache() *Cache { return d.cache }

// Dispatch runs the full pipeline for req. The returned response is
// never nil; pipeline failures are already mapped to an error status.
// The entry is nil when the request failed or a handler overrode the
// pipeline outside the cache path.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, *Entry) {
	entry, hit, err := d.fetch(ctx, req)
	if err != nil {
		d.log.Debug().Err(err).Str("path", req.Path).Msg("Pipeline failed")
		return ErrorResponse(err), nil
	}

	resp := entry.Response()
	if entry.overridden {
		// A Prime or Pre handler overrode the pipeline; the client
		// receives exactly that response, no Post phase.
		return resp, entry
	}
	t := d.newTxn(req)
	t.Identity = entry.Identity
	t.Response = resp
	t.Entry = entry
	t.Hit = hit

	for _, h := range d.registry.HandlersFor(PhasePost, req.Method, entry.Identity.Path) {
		if ctx.Err() != nil {
			return ErrorResponse(Wrap(KindInternal, ctx.Err(), "cancelled")), nil
		}
		res := h.Serve(ctx, t)
		switch res.act {
		case actOverride:
			return res.resp, entry
		case actFail:
			d.log.Debug().Err(res.err).Str("path", req.Path).Msg("Post handler failed")
			return ErrorResponse(res.err), nil
		}
	}
	return t.Response, entry
}

// Fetch runs Prime through cache fill and returns the entry, without
// the Post phase. The push engine uses it to generate candidates.
func (d *Dispatcher) Fetch(ctx context.Context, req *Request) (*Entry, error) {
	entry, _, err := d.fetch(ctx, req)
	return entry, err
}

func (d *Dispatcher) fetch(ctx context.Context, req *Request) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, Wrap(KindInternal, err, "cancelled")
	}
	t := d.newTxn(req)

	// Prime: may rewrite the path before the identity is built.
	for _, h := range d.registry.HandlersFor(PhasePrime, t.Method, t.Path) {
		res := h.Serve(ctx, t)
		switch res.act {
		case actOverride:
			return overrideEntry(t, res.resp), false, nil
		case actFail:
			return nil, false, res.err
		}
	}

	id, err := NewIdentity(t.Method, t.Host, t.Path, t.Query, t.Header, d.vary)
	if err != nil {
		return nil, false, err
	}
	t.Identity = id
	t.Log = t.Log.With().Str("key", id.Key()).Logger()

	// Path resolution sits between Prime and Pre so Pre handlers can
	// override the resolved target.
	if d.resolver != nil {
		target, err := d.resolver.Resolve(ctx, id)
		if err != nil {
			return nil, false, err
		}
		t.Target = target
	} else {
		t.Target = id.Path
	}

	for _, h := range d.registry.HandlersFor(PhasePre, t.Method, id.Path) {
		if err := ctx.Err(); err != nil {
			return nil, false, Wrap(KindInternal, err, "cancelled")
		}
		res := h.Serve(ctx, t)
		switch res.act {
		case actOverride:
			return overrideEntry(t, res.resp), false, nil
		case actFail:
			return nil, false, res.err
		}
	}

	entry, hit, err := d.cache.GetOrGenerate(ctx, id, func() (*Entry, error) {
		// The generation runs on behalf of every waiter of this
		// single-flight round, so it is detached from the first
		// caller's context.
		return d.generate(context.Background(), t)
	})
	if err != nil {
		return nil, false, err
	}
	if hit {
		t.Log.Trace().Msg("Cache hit")
	}
	return entry, hit, nil
}

// generate loads the target content, runs the Present phase over it and
// finalizes the cache entry. It runs at most once per single-flight
// round; an error here reaches every waiter and nothing is stored.
func (d *Dispatcher) generate(ctx context.Context, t *Txn) (*Entry, error) {
	if d.loader == nil {
		return nil, Errf(KindNotFound, "no loader for %s", t.Path)
	}
	resp, err := d.loader.Load(ctx, t)
	if err != nil {
		return nil, err
	}
	t.Response = resp
	t.cacheable = true

	// Content directives run before registered Present handlers so a
	// file can opt out of caching before transformation.
	if dirs, rest, ok := parseDirectives(resp.Body); ok {
		resp.Body = rest
		for _, dir := range dirs {
			h, known := d.directives[dir.name]
			if !known {
				t.Log.Debug().Str("directive", dir.name).Msg("Unknown directive")
				continue
			}
			t.Args = dir.args
			res := h.Serve(ctx, t)
			t.Args = nil
			switch res.act {
			case actOverride:
				t.Response = res.resp
				t.MarkUncacheable()
				e := d.finalize(t)
				e.overridden = true
				return e, nil
			case actFail:
				return nil, res.err
			}
		}
	}

	for _, h := range d.registry.HandlersFor(PhasePresent, t.Method, t.Identity.Path) {
		res := h.Serve(ctx, t)
		switch res.act {
		case actOverride:
			t.Response = res.resp
			t.MarkUncacheable()
			e := d.finalize(t)
			e.overridden = true
			return e, nil
		case actFail:
			return nil, res.err
		}
	}

	return d.finalize(t), nil
}

// finalize turns the generated response into an entry: discovers
// pushable sub-resources and pre-computes compression variants.
func (d *Dispatcher) finalize(t *Txn) *Entry {
	resp := t.Response
	e := &Entry{
		Identity:   t.Identity,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       resp.Body,
		Cacheable:  t.cacheable,
		Generation: xid.New(),
	}
	ct := resp.Header.Get("Content-Type")
	if scanner, ok := d.scanners[mediaType(ct)]; ok {
		e.Resources = scanner.Scan(resp.Body)
	}
	if compressible(ct) {
		e.Variants = buildVariants(resp.Body)
	}
	return e
}

func (d *Dispatcher) newTxn(req *Request) *Txn {
	return &Txn{
		Method:   req.Method,
		Host:     req.Host,
		Path:     req.Path,
		Query:    req.Query,
		Header:   req.Header,
		Body:     req.Body,
		Proto:    req.Proto,
		Log:      d.log,
		dispatch: d,
	}
}

// overrideEntry wraps a handler's Override response so callers get a
// uniform entry. Overridden responses are never cached or scanned.
func overrideEntry(t *Txn, resp *Response) *Entry {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return &Entry{
		Identity:   t.Identity,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       resp.Body,
		Cacheable:  false,
		Generation: xid.New(),
		overridden: true,
	}
}

func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}

// CompressionHandler returns the Post handler that selects the
// compression variant to serve based on the request Accept-Encoding.
func CompressionHandler() Handler {
	return HandlerFunc(func(_ context.Context, t *Txn) Result {
		if t.Entry == nil || t.Response == nil || len(t.Entry.Variants) == 0 {
			return Continue()
		}
		body, enc := selectVariant(t.Entry, t.Header.Get("Accept-Encoding"))
		t.Response.Header.Add("Vary", "Accept-Encoding")
		if enc != "" {
			t.Response.Body = body
			t.Response.Header.Set("Content-Encoding", enc)
		}
		return Continue()
	})
}
