package core

import (
	"testing"
)

func TestHTMLScannerDocumentOrder(t *testing.T) {
	body := []byte(`<!DOCTYPE html>
<html>
<head>
  <link rel="stylesheet" href="/css/main.css">
  <link rel="preload" href="/fonts/sans.woff2">
  <link rel="canonical" href="/page">
  <script src="/js/app.js"></script>
</head>
<body>
  <img src="/img/logo.png" alt="">
  <video><source src="/media/intro.mp4"></video>
</body>
</html>`)

	refs := HTMLScanner{}.Scan(body)
	want := []string{"/css/main.css", "/fonts/sans.woff2", "/js/app.js", "/img/logo.png", "/media/intro.mp4"}
	if len(refs) != len(want) {
		t.Fatalf("scanned %d refs: %+v", len(refs), refs)
	}
	for i, ref := range refs {
		if ref.Path != want[i] {
			t.Fatalf("ref %d is %q, want %q", i, ref.Path, want[i])
		}
	}
}

func TestHTMLScannerTypeHints(t *testing.T) {
	refs := HTMLScanner{}.Scan([]byte(`<link rel="stylesheet" href="/a.css"><script src="/b.js"></script>`))
	if len(refs) != 2 {
		t.Fatalf("scanned %d refs", len(refs))
	}
	if refs[0].Type != "text/css" {
		t.Fatalf("css hint is %q", refs[0].Type)
	}
	if refs[1].Type != "application/javascript" {
		t.Fatalf("js hint is %q", refs[1].Type)
	}
}

func TestEligibleRef(t *testing.T) {
	cases := map[string]bool{
		"/a.css":                    true,
		"/deep/path/x.js":           true,
		"relative.css":              false,
		"//cdn.example.org/a.css":   false,
		"https://example.org/a.css": false,
		"":                          false,
	}
	for ref, want := range cases {
		if got := eligibleRef(ref); got != want {
			t.Fatalf("eligibleRef(%q) = %v, want %v", ref, got, want)
		}
	}
}
