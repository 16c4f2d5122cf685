package core

import (
	"sort"
	"strings"
)

// Registry maps (phase, path pattern) to ordered handlers. It is built
// once at startup and must be frozen before serving; lookups after
// Freeze need no synchronization because the registry is immutable.
//
// Pattern semantics:
//
//	""        matches every path
//	"/dir/"   matches the path prefix
//	"*.ext"   matches the path suffix (file extension)
//	"/exact"  matches the path exactly
type Registry struct {
	phases [4][]registration
	frozen bool
	seq    int
}

type registration struct {
	pattern  string
	priority int
	seq      int
	methods  []string
	handler  Handler
}

// RegisterOption refines a registration.
type RegisterOption func(*registration)

// WithMethods restricts the handler to the given request methods.
func WithMethods(methods ...string) RegisterOption {
	return func(r *registration) { r.methods = methods }
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds a handler for phase and pattern. Lower priorities run
// first; ties keep registration order. Register panics after Freeze.
func (r *Registry) Register(phase Phase, pattern string, priority int, h Handler, opts ...RegisterOption) {
	if r.frozen {
		panic("core: Register after Freeze")
	}
	reg := registration{
		pattern:  pattern,
		priority: priority,
		seq:      r.seq,
		handler:  h,
	}
	r.seq++
	for _, opt := range opts {
		opt(&reg)
	}
	r.phases[phase] = append(r.phases[phase], reg)
}

// Freeze sorts every phase bucket and makes the registry read-only.
// Calling Freeze twice is a no-op.
func (r *Registry) Freeze() {
	if r.frozen {
		return
	}
	for i := range r.phases {
		bucket := r.phases[i]
		sort.SliceStable(bucket, func(a, b int) bool {
			return bucket[a].priority < bucket[b].priority
		})
	}
	r.frozen = true
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool { return r.frozen }

// HandlersFor returns the applicable handlers for phase, method and
// path, in ascending priority order. The registry must be frozen.
func (r *Registry) HandlersFor(phase Phase, method, path string) []Handler {
	if !r.frozen {
		panic("core: HandlersFor before Freeze")
	}
	bucket := r.phases[phase]
	var out []Handler
	for i := range bucket {
		reg := &bucket[i]
		if !reg.matchesMethod(method) {
			continue
		}
		if matchPattern(reg.pattern, path) {
			out = append(out, reg.handler)
		}
	}
	return out
}

func (reg *registration) matchesMethod(method string) bool {
	if len(reg.methods) == 0 {
		return true
	}
	for _, m := range reg.methods {
		if m == method {
			return true
		}
	}
	return false
}

func matchPattern(pattern, path string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(path, pattern[1:])
	case strings.HasSuffix(pattern, "/"):
		return strings.HasPrefix(path, pattern)
	default:
		return path == pattern
	}
}
