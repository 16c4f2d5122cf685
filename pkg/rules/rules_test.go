package rules

import (
	"context"
	"net/http"
	"testing"

	"github.com/hearth-server/hearth/core"
)

func TestRuleFinder(t *testing.T) {
	r := Rules{
		Rule{Prefix: "/assets/", Override: map[string]string{"Cache-Control": "max-age=31536000"}},
		Rule{Suffix: ".html", Override: map[string]string{"X-Frame-Options": "DENY"}},
		Rule{Override: map[string]string{"X-Served-By": "hearth"}},
	}

	if rule := r.find("GET", "/assets/app.js"); rule == nil || rule.Prefix != "/assets/" {
		t.Fatal("Incorrect rule")
	}
	if rule := r.find("GET", "/about.html"); rule == nil || rule.Suffix != ".html" {
		t.Fatal("Incorrect rule")
	}
	if rule := r.find("GET", "/robots.txt"); rule == nil || rule.Prefix != "" || rule.Suffix != "" {
		t.Fatal("Incorrect rule")
	}
	if rule := r.find("POST", "/about.html"); rule != nil {
		t.Fatal("Rule matched non-GET method")
	}
}

func TestApply(t *testing.T) {
	h := make(http.Header)
	ruleDefault := Rule{Default: map[string]string{"Cache-Control": "no-cache"}}
	ruleOverride := Rule{Override: map[string]string{"Cache-Control": "max-age=60"}}

	applyRule(ruleDefault, h)
	if cc := h.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}

	h.Set("Cache-Control", "private")
	applyRule(ruleDefault, h)
	if cc := h.Get("Cache-Control"); cc != "private" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}

	applyRule(ruleOverride, h)
	if cc := h.Get("Cache-Control"); cc != "max-age=60" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}
}

func TestPostSkipsFailures(t *testing.T) {
	id, err := core.NewIdentity("GET", "example.com", "/missing", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	txn := &core.Txn{
		Method:   "GET",
		Identity: id,
		Response: &core.Response{Status: http.StatusNotFound, Header: make(http.Header)},
	}

	r := Rules{Rule{Override: map[string]string{"X-Served-By": "hearth"}}}
	Post(r).Serve(context.Background(), txn)

	if txn.Response.Header.Get("X-Served-By") != "" {
		t.Fatal("rule applied to a non-200 response")
	}
}

func TestPostAppliesFirstMatch(t *testing.T) {
	id, err := core.NewIdentity("GET", "example.com", "/index.html", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	txn := &core.Txn{
		Method:   "GET",
		Identity: id,
		Response: &core.Response{Status: http.StatusOK, Header: make(http.Header)},
	}

	r := Rules{
		Rule{Suffix: ".html", Override: map[string]string{"X-Frame-Options": "DENY"}},
		Rule{Override: map[string]string{"X-Frame-Options": "SAMEORIGIN"}},
	}
	Post(r).Serve(context.Background(), txn)

	if got := txn.Response.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("header is %q", got)
	}
}
