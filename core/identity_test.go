package core

import (
	"net/http"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/a/../b", "/b"},
		{"/a/./b", "/a/b"},
		{"//a//b", "/a/b"},
		{"/a/b/../../c", "/c"},
		{"/%61", "/a"},
		{"/a/%2e%2e/b", "/b"},
		{"/docs/", "/docs/"},
		{"/a/..", "/"},
	}
	for _, c := range cases {
		got, err := NormalizePath(c.in)
		if err != nil {
			t.Fatalf("NormalizePath(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePathRejects(t *testing.T) {
	for _, in := range []string{"", "a/b", "/../etc/passwd", "/%2e%2e/etc", "/a/../../b", "/%zz"} {
		if _, err := NormalizePath(in); err == nil {
			t.Fatalf("NormalizePath(%q) did not fail", in)
		} else if StatusFor(err) != http.StatusBadRequest {
			t.Fatalf("NormalizePath(%q) maps to %d", in, StatusFor(err))
		}
	}
}

func TestIdentityAliasesCollapse(t *testing.T) {
	a, err := NewIdentity("GET", "example.com", "/a/../b", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewIdentity("GET", "example.com", "/b", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}

func TestIdentityVaryHeaders(t *testing.T) {
	h1 := http.Header{"Accept-Language": []string{"sv"}}
	h2 := http.Header{"Accept-Language": []string{"en"}}
	vary := []string{"Accept-Language"}

	a, _ := NewIdentity("GET", "example.com", "/", "", h1, vary)
	b, _ := NewIdentity("GET", "example.com", "/", "", h2, vary)
	c, _ := NewIdentity("GET", "example.com", "/", "", h1, vary)

	if a.Key() == b.Key() {
		t.Fatal("different vary header values share a key")
	}
	if a.Key() != c.Key() {
		t.Fatal("equal vary header values do not share a key")
	}
}

func TestIdentitySeparatesMethodHostQuery(t *testing.T) {
	base, _ := NewIdentity("GET", "example.com", "/p", "q=1", nil, nil)
	byMethod, _ := NewIdentity("HEAD", "example.com", "/p", "q=1", nil, nil)
	byHost, _ := NewIdentity("GET", "other.com", "/p", "q=1", nil, nil)
	byQuery, _ := NewIdentity("GET", "example.com", "/p", "q=2", nil, nil)

	for _, other := range []Identity{byMethod, byHost, byQuery} {
		if base.Key() == other.Key() {
			t.Fatalf("identity %v collides with %v", base, other)
		}
	}
}
