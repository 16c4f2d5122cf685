// Package accesslog logs one line per served request.
package accesslog

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// recorder is a wrapper around http.ResponseWriter that remembers the
// status code and body size for the log line.
type recorder struct {
	rw          http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *recorder) Header() http.Header {
	return r.rw.Header()
}

func (r *recorder) WriteHeader(statusCode int) {
	r.wroteHeader = true
	r.status = statusCode
	r.rw.WriteHeader(statusCode)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.rw.Write(b)
	r.bytes += n
	return n, err
}

// Push keeps the underlying writer's push capability visible through
// the wrapper.
func (r *recorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := r.rw.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

// Middleware logs method, path, status, size and duration of every
// request at info level.
func Middleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{rw: w}
		next.ServeHTTP(rec, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}
