package core

import (
	"bytes"
	"mime"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// Scanner extracts sub-resource references from a response body.
// Scanning must cost O(len(body)) and never follow references.
type Scanner interface {
	Scan(body []byte) []ResourceRef
}

// DefaultScanners returns the built-in scanner set, keyed by media type.
func DefaultScanners() map[string]Scanner {
	return map[string]Scanner{
		"text/html": HTMLScanner{},
	}
}

// HTMLScanner tokenizes a markup body and collects the references of
// stylesheet links, scripts, images and media sources, in document
// order. Duplicate references are kept; the push engine deduplicates.
type HTMLScanner struct{}

func (HTMLScanner) Scan(body []byte) []ResourceRef {
	tok := html.NewTokenizer(bytes.NewReader(body))
	var refs []ResourceRef
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			return refs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tok.TagName()
		if !hasAttr {
			continue
		}
		switch string(name) {
		case "link":
			href, rel := tagAttrs(tok, "href", "rel")
			if href == "" {
				continue
			}
			switch rel {
			case "stylesheet", "preload", "icon", "modulepreload":
				refs = append(refs, ResourceRef{Path: href, Type: typeHint(href)})
			}
		case "script":
			src, _ := tagAttrs(tok, "src", "")
			if src != "" {
				refs = append(refs, ResourceRef{Path: src, Type: "application/javascript"})
			}
		case "img", "source", "audio", "video":
			src, _ := tagAttrs(tok, "src", "")
			if src != "" {
				refs = append(refs, ResourceRef{Path: src, Type: typeHint(src)})
			}
		}
	}
}

// tagAttrs pulls up to two attributes from the current tag.
func tagAttrs(tok *html.Tokenizer, first, second string) (string, string) {
	var a, b string
	for {
		key, val, more := tok.TagAttr()
		switch string(key) {
		case first:
			a = string(val)
		case second:
			b = strings.ToLower(string(val))
		}
		if !more {
			return a, b
		}
	}
}

func typeHint(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ext := path.Ext(ref)
	if ext == "" {
		return ""
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

// eligibleRef reports whether a scanned reference may be pushed: only
// same-origin, relative references qualify.
func eligibleRef(ref string) bool {
	if ref == "" || ref[0] != '/' {
		return false
	}
	// protocol-relative URLs point off-origin
	if strings.HasPrefix(ref, "//") {
		return false
	}
	return true
}
