package core

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Phase is one of the ordered stages of the request pipeline.
type Phase uint8

const (
	// PhasePrime runs first and may rewrite the request path before the
	// identity is built (e.g. `/` to `/index.html`).
	PhasePrime Phase = iota
	// PhasePre runs after path resolution and before the cache lookup.
	// Gateway handlers live here and usually Override.
	PhasePre
	// PhasePresent transforms freshly loaded content. Runs only on a
	// cache miss, inside the generation.
	PhasePresent
	// PhasePost runs on every request, cached or not. Compression
	// selection and header injection live here.
	PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhasePrime:
		return "prime"
	case PhasePre:
		return "pre"
	case PhasePresent:
		return "present"
	case PhasePost:
		return "post"
	}
	return "unknown"
}

// Request is what the transport hands the pipeline.
type Request struct {
	Method string
	Host   string
	Path   string
	Query  string
	Header http.Header
	Body   io.Reader

	// Proto is the negotiated HTTP version, e.g. "HTTP/2.0".
	Proto string
	// Scheme is "https" on TLS-terminated connections, "http" otherwise.
	// Push promises carry it as the :scheme pseudo-header.
	Scheme string
	// PushCapable is true when the connection supports server push and
	// the peer has not disabled it.
	PushCapable bool
}

// Response is what the pipeline hands back to the transport.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) clone() *Response {
	h := make(http.Header, len(r.Header))
	for k, vv := range r.Header {
		h[k] = append([]string(nil), vv...)
	}
	return &Response{Status: r.Status, Header: h, Body: r.Body}
}

type action uint8

const (
	actContinue action = iota
	actOverride
	actFail
)

// Result is what a handler invocation returns. The zero value is Continue.
type Result struct {
	act  action
	resp *Response
	err  error
}

// Continue proceeds to the next handler or phase.
func Continue() Result { return Result{} }

// Override aborts the remaining phases and sends resp as the final
// response. Overridden responses are never cached.
func Override(resp *Response) Result { return Result{act: actOverride, resp: resp} }

// Fail aborts the pipeline; err is mapped to an HTTP error status.
func Fail(err error) Result { return Result{act: actFail, err: err} }

// Handler is an extension hook invoked by the pipeline.
type Handler interface {
	Serve(ctx context.Context, t *Txn) Result
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, t *Txn) Result

func (f HandlerFunc) Serve(ctx context.Context, t *Txn) Result { return f(ctx, t) }

// Txn carries the mutable per-request pipeline state through the phases.
// It is owned by a single request and never shared.
type Txn struct {
	// Request fields. Prime handlers may rewrite Path (and Query)
	// before the identity is built.
	Method string
	Host   string
	Path   string
	Query  string
	Header http.Header
	Body   io.Reader
	Proto  string

	// Identity is set once Prime has run. Read-only afterwards.
	Identity Identity

	// Target is the resolved filesystem or virtual resource. Set by
	// path resolution; Pre handlers may override it.
	Target string

	// Response is present during Present (the entry under generation)
	// and Post (a per-request copy of the served entry).
	Response *Response

	// Entry is the served cache entry, set for the Post phase only.
	// Handlers must treat it as read-only; mutate Response instead.
	Entry *Entry

	// Hit reports whether Entry came out of the cache without a fresh
	// generation. Set for the Post phase only.
	Hit bool

	// Args holds the arguments of the directive currently running.
	Args []string

	// Vars is free-form state shared between handlers of one request,
	// e.g. template variables.
	Vars map[string]string

	Log zerolog.Logger

	cacheable bool
	dispatch  *Dispatcher
}

// MarkUncacheable prevents the entry under generation from being stored.
// The response is still sent; the next request regenerates it.
func (t *Txn) MarkUncacheable() { t.cacheable = false }

// Cacheable reports whether the entry may be stored.
func (t *Txn) Cacheable() bool { return t.cacheable }

// SetVar stores a request-scoped variable, creating the map if needed.
func (t *Txn) SetVar(key, value string) {
	if t.Vars == nil {
		t.Vars = make(map[string]string)
	}
	t.Vars[key] = value
}

// Evict removes the cache entry for id, if present. Used by handlers
// after a content-modifying operation on the backing resource.
func (t *Txn) Evict(id Identity) {
	if t.dispatch != nil {
		t.dispatch.cache.Evict(id)
	}
}
