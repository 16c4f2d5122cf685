// Package templates plugs a templating engine into the Present phase.
// The directive syntax and evaluation semantics belong to the engine;
// this package only owns the invocation contract.
package templates

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hearth-server/hearth/core"
)

// Engine renders a raw body with a read-only variable map. A non-nil
// error aborts the pipeline with a template failure (500); the partial
// output is discarded.
type Engine interface {
	Render(body []byte, vars map[string]string) ([]byte, error)
}

// EngineFunc adapts a function to an Engine.
type EngineFunc func(body []byte, vars map[string]string) ([]byte, error)

func (f EngineFunc) Render(body []byte, vars map[string]string) ([]byte, error) {
	return f(body, vars)
}

// Present returns a Present-phase handler that renders the response
// body through engine. Register it for the paths that hold templates:
//
//	reg.Register(core.PhasePresent, "*.html", 0, templates.Present(engine))
func Present(engine Engine) core.Handler {
	return core.HandlerFunc(func(_ context.Context, t *core.Txn) core.Result {
		if t.Response == nil {
			return core.Continue()
		}
		out, err := engine.Render(t.Response.Body, t.Vars)
		if err != nil {
			return core.Fail(core.Wrap(core.KindTemplate, err, "rendering "+t.Path))
		}
		t.Response.Body = out
		return core.Continue()
	})
}

// Directive returns a handler for the "tmpl" content directive. The
// directive arguments name base templates resolved against root and
// prepended to the body before rendering:
//
//	!> tmpl base.html
func Directive(engine Engine, root string) core.Handler {
	return core.HandlerFunc(func(_ context.Context, t *core.Txn) core.Result {
		if t.Response == nil {
			return core.Continue()
		}
		body := t.Response.Body
		for i := len(t.Args) - 1; i >= 0; i-- {
			base, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(t.Args[i])))
			if err != nil {
				return core.Fail(core.Wrap(core.KindTemplate, err, "loading base template "+t.Args[i]))
			}
			body = append(append([]byte{}, base...), body...)
		}
		out, err := engine.Render(body, t.Vars)
		if err != nil {
			return core.Fail(core.Wrap(core.KindTemplate, err, "rendering "+t.Path))
		}
		t.Response.Body = out
		return core.Continue()
	})
}

// VarEngine is a minimal engine replacing `${name}` references with
// values from the variable map. Unknown references render empty.
type VarEngine struct{}

func (VarEngine) Render(body []byte, vars map[string]string) ([]byte, error) {
	expanded := os.Expand(string(body), func(name string) string {
		return vars[name]
	})
	return []byte(expanded), nil
}

var _ Engine = VarEngine{}

// WithVars returns a Present-phase handler that seeds the request's
// variable map before rendering handlers run. Later handlers (and the
// engine) read the same map.
func WithVars(vars map[string]string) core.Handler {
	return core.HandlerFunc(func(_ context.Context, t *core.Txn) core.Result {
		for k, v := range vars {
			t.SetVar(k, v)
		}
		return core.Continue()
	})
}
