package core

import (
	"bytes"
	"context"
	"strings"
)

// Content directives let a served file opt into Present handlers.
// A body starting with
//
//	!> tmpl base.html &> cache server:none
//
// runs the named directive handlers in the listed order with their
// arguments, and the directive line is stripped from the served body.
const (
	directivePrefix = "!> "
	directiveJoin   = " &> "
)

type directive struct {
	name string
	args []string
}

// parseDirectives splits the directive line off body. It returns the
// directives, the remaining body, and whether a directive line existed.
func parseDirectives(body []byte) ([]directive, []byte, bool) {
	if !bytes.HasPrefix(body, []byte(directivePrefix)) {
		return nil, body, false
	}
	lineEnd := bytes.IndexByte(body, '\n')
	if lineEnd < 0 {
		lineEnd = len(body)
	}
	line := strings.TrimRight(string(body[len(directivePrefix):lineEnd]), "\r")
	rest := body[minInt(lineEnd+1, len(body)):]

	var out []directive
	for _, part := range strings.Split(line, directiveJoin) {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		out = append(out, directive{name: fields[0], args: fields[1:]})
	}
	if len(out) == 0 {
		return nil, body, false
	}
	return out, rest, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// BuiltinDirectives returns the directive handlers every dispatcher
// understands. Hosts may add their own (e.g. a template evaluator
// under "tmpl").
func BuiltinDirectives() map[string]Handler {
	return map[string]Handler{
		"cache":    HandlerFunc(cacheDirective),
		"download": HandlerFunc(downloadDirective),
		"hide":     HandlerFunc(hideDirective),
	}
}

// cacheDirective adjusts cache behavior for the entry under generation.
// Argument form is "server:none" to disable server caching.
func cacheDirective(_ context.Context, t *Txn) Result {
	for _, arg := range t.Args {
		domain, pref, ok := strings.Cut(arg, ":")
		if !ok {
			continue
		}
		if domain == "server" && pref == "none" {
			t.MarkUncacheable()
		}
	}
	return Continue()
}

// downloadDirective makes the client download the file.
func downloadDirective(_ context.Context, t *Txn) Result {
	if t.Response != nil {
		t.Response.Header.Set("Content-Type", "application/octet-stream")
	}
	return Continue()
}

// hideDirective makes the resource unreachable over HTTP.
func hideDirective(_ context.Context, t *Txn) Result {
	return Fail(Errf(KindNotFound, "hidden resource %s", t.Path))
}
