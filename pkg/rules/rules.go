// Package rules injects response headers at the Post phase based on
// path-matching rules, e.g. a Content-Security-Policy for HTML pages or
// long-lived client caching for hashed assets.
package rules

import (
	"context"
	"net/http"
	"strings"

	"github.com/hearth-server/hearth/core"
)

// Rules is an ordered rule list; the first matching rule wins.
type Rules []Rule

type Rule struct {
	// Prefix matches a path prefix, e.g. "/assets/".
	Prefix string `yaml:"prefix"`
	// Suffix matches a path suffix, e.g. ".html".
	Suffix string `yaml:"suffix"`
	// Path matches one path exactly.
	Path string `yaml:"path"`
	// Method restricts the rule; empty means GET only.
	Method string `yaml:"method"`

	// Default sets headers that are missing from the response.
	Default map[string]string `yaml:"default"`
	// Override sets headers unconditionally.
	Override map[string]string `yaml:"override"`
}

// Post returns a Post-phase handler applying r to successful responses.
func Post(r Rules) core.Handler {
	return core.HandlerFunc(func(_ context.Context, t *core.Txn) core.Result {
		if t.Response == nil || t.Response.Status != http.StatusOK {
			return core.Continue()
		}
		if rule := r.find(t.Method, t.Identity.Path); rule != nil {
			applyRule(*rule, t.Response.Header)
		}
		return core.Continue()
	})
}

func applyRule(rule Rule, h http.Header) {
	for name, value := range rule.Default {
		if h.Get(name) == "" {
			h.Set(name, value)
		}
	}
	for name, value := range rule.Override {
		h.Set(name, value)
	}
}

func (r Rules) find(method, path string) *Rule {
	for i := range r {
		rule := &r[i]
		if rule.Method == "" && method != http.MethodGet {
			continue
		}
		if rule.Method != "" && rule.Method != method {
			continue
		}
		if rule.Path != "" && rule.Path != path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(path, rule.Prefix) {
			continue
		}
		if rule.Suffix != "" && !strings.HasSuffix(path, rule.Suffix) {
			continue
		}
		return rule
	}
	return nil
}
