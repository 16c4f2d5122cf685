package core

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// Promise is a server push offer handed to the transport layer. The
// pseudo-header fields must exactly match what a client-initiated
// request for the path would have used.
type Promise struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	// Header holds the request headers of the synthetic request.
	Header http.Header
	// Response is the candidate's generated response.
	Response *Response
}

// PromiseWriter emits push promises to the transport. Implementations
// must tolerate concurrent calls from candidate generation workers.
type PromiseWriter interface {
	WritePromise(p *Promise) error
}

// PromiseWriterFunc adapts a function to a PromiseWriter.
type PromiseWriterFunc func(p *Promise) error

func (f PromiseWriterFunc) WritePromise(p *Promise) error { return f(p) }

// Engine schedules HTTP/2 server pushes for the sub-resources of a
// response. Candidates are generated through the dispatcher (Prime
// through cache fill, no Post) so a pushed body is exactly the body a
// later client request would get.
//
// Push fan-out is one level deep: resources discovered in a pushed
// candidate are never pushed themselves.
type Engine struct {
	dispatcher  *Dispatcher
	pageBudget  int
	concurrency int
	log         zerolog.Logger
}

// EngineConfig configures the push engine.
type EngineConfig struct {
	Dispatcher *Dispatcher
	// PageBudget is the per-primary-response candidate cap. Excess
	// references are skipped in document order.
	PageBudget int
	// Concurrency caps concurrent candidate generations.
	Concurrency int
	Logger      *zerolog.Logger
}

const (
	defaultPageBudget  = 8
	defaultConcurrency = 4
)

// NewEngine creates a push engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Dispatcher == nil {
		panic("core: push engine needs a dispatcher")
	}
	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *cfg.Logger
	}
	e := &Engine{
		dispatcher:  cfg.Dispatcher,
		pageBudget:  cfg.PageBudget,
		concurrency: cfg.Concurrency,
		log:         logger,
	}
	if e.pageBudget <= 0 {
		e.pageBudget = defaultPageBudget
	}
	if e.concurrency <= 0 {
		e.concurrency = defaultConcurrency
	}
	return e
}

// Schedule pushes the eligible sub-resources of entry on the session's
// connection and returns how many promises were written. It returns
// before the primary body is flushed; the transport must call it ahead
// of writing the body.
//
// A request on a connection with push disabled is not an error: the
// engine does nothing and the primary response proceeds normally.
// Candidate failures are logged and swallowed, never surfaced.
func (e *Engine) Schedule(ctx context.Context, ses *Session, req *Request, entry *Entry, w PromiseWriter) int {
	if !req.PushCapable || ses == nil || entry == nil || len(entry.Resources) == 0 {
		return 0
	}

	selected := e.selectCandidates(ses, entry)
	if len(selected) == 0 {
		return 0
	}
	log := e.log.With().Str("session", ses.ID.String()).Str("page", entry.Identity.Path).Logger()
	log.Debug().Int("candidates", len(selected)).Msg("Scheduling pushes")

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, e.concurrency)
		writeMu sync.Mutex
		pushed  int
	)
	for _, ref := range selected {
		wg.Add(1)
		sem <- struct{}{}
		go func(ref ResourceRef) {
			defer func() {
				<-sem
				wg.Done()
			}()
			p, err := e.generate(ctx, req, ref)
			if err != nil {
				ses.Release()
				log.Debug().Err(err).Str("path", ref.Path).Msg("Push candidate skipped")
				return
			}
			writeMu.Lock()
			err = w.WritePromise(p)
			if err == nil {
				pushed++
			}
			writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Str("path", ref.Path).Msg("Transport rejected push")
			}
		}(ref)
	}
	wg.Wait()
	return pushed
}

// selectCandidates walks the discovered resources in document order and
// claims push slots: same-origin relative references only, deduplicated
// within the page and across the connection, capped by the page budget.
// Selection is deterministic for a given body and session state.
func (e *Engine) selectCandidates(ses *Session, entry *Entry) []ResourceRef {
	var selected []ResourceRef
	seen := make(map[string]struct{}, len(entry.Resources))
	for _, ref := range entry.Resources {
		if len(selected) >= e.pageBudget {
			break
		}
		if !eligibleRef(ref.Path) {
			continue
		}
		p, err := NormalizePath(ref.Path)
		if err != nil {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if !ses.Claim(p) {
			continue
		}
		selected = append(selected, ResourceRef{Path: p, Type: ref.Type})
	}
	return selected
}

// generate runs a candidate through the pipeline and builds its
// promise. Only 200 results become promises.
func (e *Engine) generate(ctx context.Context, primary *Request, ref ResourceRef) (*Promise, error) {
	hdr := make(http.Header, 1)
	if ae := primary.Header.Get("Accept-Encoding"); ae != "" {
		hdr.Set("Accept-Encoding", ae)
	}
	creq := &Request{
		Method: http.MethodGet,
		Host:   primary.Host,
		Path:   ref.Path,
		Header: hdr,
		Proto:  primary.Proto,
		// Pushed resources never trigger further pushes.
		PushCapable: false,
	}
	entry, err := e.dispatcher.Fetch(ctx, creq)
	if err != nil {
		return nil, err
	}
	if entry.Status != http.StatusOK {
		return nil, Errf(KindInternal, "candidate status %d", entry.Status)
	}
	scheme := primary.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return &Promise{
		Method:    http.MethodGet,
		Scheme:    scheme,
		Authority: primary.Host,
		Path:      ref.Path,
		Header:    hdr,
		Response:  entry.Response(),
	}, nil
}
