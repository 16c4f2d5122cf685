package hearth

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/hearth-server/hearth/core"
)

// pushSentinelHeader marks synthetic requests triggered by a push
// promise, so a pushed page never pushes again (one level deep).
const pushSentinelHeader = "X-Hearth-Push"

type ctxKey int

const sessionKey ctxKey = 0

// ConnContext creates the per-connection push session. Wire it into
// http.Server:
//
//	srv := &http.Server{Handler: s, ConnContext: s.ConnContext}
//
// Without it, each request gets an ephemeral session: pushes still
// work but deduplication only spans a single response.
func (s *Server) ConnContext(ctx context.Context, _ net.Conn) context.Context {
	return context.WithValue(ctx, sessionKey, core.NewSession(s.sessionBudget))
}

func sessionFrom(ctx context.Context) *core.Session {
	ses, _ := ctx.Value(sessionKey).(*core.Session)
	return ses
}

// ServeHTTP implements http.Handler: it adapts the transport request to
// the core pipeline, schedules pushes on capable connections, and
// writes the pipeline's response back.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.ready()

	req := s.coreRequest(w, r)
	resp, entry := s.dispatcher.Dispatch(r.Context(), req)

	if req.PushCapable && entry != nil {
		ses := sessionFrom(r.Context())
		if ses == nil {
			ses = core.NewSession(s.sessionBudget)
		}
		pusher := w.(http.Pusher)
		// promises go out before any primary body bytes
		s.push.Schedule(r.Context(), ses, req, entry, &pusherWriter{pusher: pusher})
	}

	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = vv
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead && resp.Status != http.StatusNoContent {
		if _, err := w.Write(resp.Body); err != nil {
			s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Could not write response body to client")
		}
	}
}

func (s *Server) coreRequest(w http.ResponseWriter, r *http.Request) *core.Request {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	_, canPush := w.(http.Pusher)
	pushCapable := !s.disablePush &&
		canPush &&
		r.ProtoMajor >= 2 &&
		r.Header.Get(pushSentinelHeader) == ""

	return &core.Request{
		Method:      r.Method,
		Host:        r.Host,
		Path:        r.URL.EscapedPath(),
		Query:       r.URL.RawQuery,
		Header:      r.Header,
		Body:        r.Body,
		Proto:       r.Proto,
		Scheme:      scheme,
		PushCapable: pushCapable,
	}
}

// pusherWriter adapts http.Pusher to the core promise contract. The
// net/http push machinery re-requests the path through the handler;
// the candidate's generation has already filled the cache, so that
// synthetic request is a cache hit.
type pusherWriter struct {
	pusher http.Pusher
}

func (p *pusherWriter) WritePromise(pr *core.Promise) error {
	hdr := make(http.Header, len(pr.Header)+1)
	for k, vv := range pr.Header {
		hdr[k] = vv
	}
	hdr.Set(pushSentinelHeader, "1")
	return p.pusher.Push(pr.Path, &http.PushOptions{
		Method: pr.Method,
		Header: hdr,
	})
}
