// Package gateway forwards requests to an upstream connector at the
// Pre phase. The upstream's protocol framing (HTTP, FastCGI, ...) is
// opaque to the pipeline; this package owns the invocation contract
// and ships an HTTP reverse-proxy upstream.
package gateway

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearth-server/hearth/core"
)

// Upstream handles a forwarded request. A non-nil error aborts the
// pipeline with a gateway failure (502, or 504 on timeout).
type Upstream interface {
	RoundTrip(ctx context.Context, t *core.Txn) (*core.Response, error)
}

// Pre returns a Pre-phase handler forwarding matching requests to
// upstream. The upstream's response overrides the rest of the
// pipeline and is never cached.
func Pre(upstream Upstream) core.Handler {
	return core.HandlerFunc(func(ctx context.Context, t *core.Txn) core.Result {
		resp, err := upstream.RoundTrip(ctx, t)
		if err != nil {
			return core.Fail(core.Wrap(core.KindGateway, err, "upstream for "+t.Path))
		}
		return core.Override(resp)
	})
}

// HTTPUpstream proxies to an HTTP origin. Redirects are returned to
// the client rather than followed, and hop-by-hop headers are
// stripped in both directions.
type HTTPUpstream struct {
	origin url.URL
	// Host header override, e.g. when the origin URL is an IP address.
	hostHeader string
	client     *http.Client
	log        zerolog.Logger
}

// HTTPConfig configures an HTTPUpstream.
type HTTPConfig struct {
	// Origin is the upstream base URL. Origins with paths are not
	// supported.
	Origin url.URL
	// Host overrides the forwarded Host header.
	Host string
	// Timeout bounds one upstream exchange (default 30s).
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// NewHTTP creates an HTTP upstream.
func NewHTTP(cfg HTTPConfig) *HTTPUpstream {
	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *cfg.Logger
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPUpstream{
		origin:     cfg.Origin,
		hostHeader: cfg.Host,
		client: &http.Client{
			Timeout: timeout,
			// the client decides what to do with redirects
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: logger.With().Str("origin", cfg.Origin.String()).Logger(),
	}
}

// hop-by-hop headers per RFC 9110 section 7.6.1
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (u *HTTPUpstream) RoundTrip(ctx context.Context, t *core.Txn) (*core.Response, error) {
	uri := u.origin.String() + t.Identity.Path
	if t.Query != "" {
		uri += "?" + t.Query
	}
	req, err := http.NewRequestWithContext(ctx, t.Method, uri, t.Body)
	if err != nil {
		return nil, err
	}
	copyEndToEnd(req.Header, t.Header)
	if u.hostHeader != "" {
		req.Host = u.hostHeader
	} else {
		req.Host = t.Host
	}

	u.log.Trace().Str("uri", uri).Msg("Forwarding to upstream")
	res, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	header := make(http.Header, len(res.Header))
	copyEndToEnd(header, res.Header)
	return &core.Response{Status: res.StatusCode, Header: header, Body: body}, nil
}

func copyEndToEnd(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
