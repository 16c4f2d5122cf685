package core

import (
	"hash/fnv"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Identity is the canonical key for a cacheable response variant.
// Two requests with equal identities are served identical cached bytes,
// modulo the compression variant chosen at Post time.
//
// The path is normalized (percent-decoded, dot segments resolved) before
// the identity is built, so `/a/../b` and `/b` share one cache entry and
// path aliasing cannot poison the cache.
type Identity struct {
	Host   string
	Path   string
	Query  string
	Method string
	// Vary holds the cache-relevant request header values in canonical
	// "name=value" form, sorted by name.
	Vary string
}

// NewIdentity builds the identity for a request. It returns a KindPath
// error if the path cannot be decoded or escapes the root.
func NewIdentity(method, host, rawPath, rawQuery string, hdr http.Header, vary []string) (Identity, error) {
	p, err := NormalizePath(rawPath)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Host:   strings.ToLower(host),
		Path:   p,
		Query:  rawQuery,
		Method: method,
		Vary:   varyString(hdr, vary),
	}, nil
}

// NormalizePath percent-decodes rawPath and resolves `.` and `..`
// segments. Decoding happens before segment resolution, so an encoded
// traversal (`%2e%2e`) is treated exactly like a literal one.
func NormalizePath(rawPath string) (string, error) {
	if rawPath == "" || rawPath[0] != '/' {
		return "", Errf(KindPath, "path %q is not absolute", rawPath)
	}
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", Wrap(KindPath, err, "cannot decode path")
	}
	if strings.ContainsRune(decoded, 0) {
		return "", Errf(KindPath, "path contains NUL")
	}

	segments := strings.Split(decoded, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			// collapse
		case "..":
			if len(out) == 0 {
				return "", Errf(KindPath, "path %q escapes root", rawPath)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	normalized := "/" + strings.Join(out, "/")
	if strings.HasSuffix(decoded, "/") && normalized != "/" {
		normalized += "/"
	}
	return normalized, nil
}

func varyString(hdr http.Header, vary []string) string {
	if len(vary) == 0 || hdr == nil {
		return ""
	}
	pairs := make([]string, 0, len(vary))
	for _, name := range vary {
		if v := hdr.Get(name); v != "" {
			pairs = append(pairs, strings.ToLower(name)+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\n")
}

// Key returns the string form used for cache storage and sharding.
func (id Identity) Key() string {
	var b strings.Builder
	b.Grow(len(id.Method) + len(id.Host) + len(id.Path) + len(id.Query) + len(id.Vary) + 4)
	b.WriteString(id.Method)
	b.WriteByte(':')
	b.WriteString(id.Host)
	b.WriteString(id.Path)
	if id.Query != "" {
		b.WriteByte('?')
		b.WriteString(id.Query)
	}
	if id.Vary != "" {
		b.WriteByte('\t')
		b.WriteString(id.Vary)
	}
	return b.String()
}

func (id Identity) String() string { return id.Key() }

// shardIndex hashes the key into one of n shards.
func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
