package core

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Resolver maps a normalized URL path to a filesystem or virtual
// target. Path resolution runs between Prime and Pre so Pre handlers
// can override the resolved target.
type Resolver interface {
	Resolve(ctx context.Context, id Identity) (target string, err error)
}

// Loader produces the raw content for a resolved target. The default
// pipeline runs the Present phase over its result on every cache miss.
type Loader interface {
	Load(ctx context.Context, t *Txn) (*Response, error)
}

// FileResolver resolves paths inside a root directory. The root is a
// jail: normalized paths cannot traverse out, and the resolved target
// is verified to stay under it.
type FileResolver struct {
	Root string
	// Index is served for directory paths. Defaults to "index.html".
	Index string
}

func (f FileResolver) Resolve(_ context.Context, id Identity) (string, error) {
	p := id.Path
	if strings.HasSuffix(p, "/") {
		index := f.Index
		if index == "" {
			index = "index.html"
		}
		p = p + index
	}
	target := filepath.Join(f.Root, filepath.FromSlash(p))
	root := filepath.Clean(f.Root)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", Errf(KindPath, "path %q resolves outside root", id.Path)
	}
	return target, nil
}

// FileLoader reads the resolved target from disk.
type FileLoader struct{}

func (FileLoader) Load(_ context.Context, t *Txn) (*Response, error) {
	body, err := os.ReadFile(t.Target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Errf(KindNotFound, "no resource for %s", t.Path)
		}
		if os.IsPermission(err) {
			return nil, Errf(KindNotFound, "no resource for %s", t.Path)
		}
		return nil, Wrap(KindInternal, err, "reading target")
	}
	h := make(http.Header, 1)
	h.Set("Content-Type", contentTypeFor(t.Target, body))
	return &Response{Status: http.StatusOK, Header: h, Body: body}, nil
}

func contentTypeFor(target string, body []byte) string {
	if ct := mime.TypeByExtension(path.Ext(filepath.ToSlash(target))); ct != "" {
		return ct
	}
	return http.DetectContentType(body)
}
