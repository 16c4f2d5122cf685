package hearth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// pushRecorder is a ResponseRecorder that also implements http.Pusher.
type pushRecorder struct {
	*httptest.ResponseRecorder
	mu     sync.Mutex
	pushes []string
}

func (p *pushRecorder) Push(target string, opts *http.PushOptions) error {
	p.mu.Lock()
	p.pushes = append(p.pushes, target)
	p.mu.Unlock()
	return nil
}

func newPushRecorder() *pushRecorder {
	return &pushRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html": `<html><head><link rel="stylesheet" href="/style.css"><link rel="stylesheet" href="/style.css"></head><body>home</body></html>`,
		"other.html": `<html><head><link rel="stylesheet" href="/style.css"></head></html>`,
		"style.css":  "body { margin: 0 }",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func h2Request(t *testing.T, s *Server, path string) *http.Request {
	t.Helper()
	r := httptest.NewRequest("GET", path, nil)
	r.Proto = "HTTP/2.0"
	r.ProtoMajor = 2
	r.ProtoMinor = 0
	return r
}

func TestServesFiles(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, httptest.NewRequest("GET", "/style.css", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status is %d", rr.Code)
	}
	if rr.Body.String() != "body { margin: 0 }" {
		t.Fatalf("body is %q", rr.Body.String())
	}
}

func TestDirectoryServesIndex(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status is %d", rr.Code)
	}
}

func TestPushPromisesPerConnection(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	// one connection: one session shared by both requests
	connCtx := s.ConnContext(httptest.NewRequest("GET", "/", nil).Context(), nil)

	rr := newPushRecorder()
	r := h2Request(t, s, "/index.html").WithContext(connCtx)
	s.ServeHTTP(rr, r)

	if len(rr.pushes) != 1 || rr.pushes[0] != "/style.css" {
		t.Fatalf("first page pushed %v", rr.pushes)
	}

	rr2 := newPushRecorder()
	r2 := h2Request(t, s, "/other.html").WithContext(connCtx)
	s.ServeHTTP(rr2, r2)

	if len(rr2.pushes) != 0 {
		t.Fatalf("second page on same connection pushed %v", rr2.pushes)
	}
}

func TestPushedRequestsDoNotPushAgain(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	rr := newPushRecorder()
	r := h2Request(t, s, "/index.html")
	r.Header.Set(pushSentinelHeader, "1")

	s.ServeHTTP(rr, r)

	if len(rr.pushes) != 0 {
		t.Fatalf("pushed request pushed again: %v", rr.pushes)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status is %d", rr.Code)
	}
}

func TestHTTP1ConnectionsNeverPush(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, httptest.NewRequest("GET", "/index.html", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status is %d", rr.Code)
	}
}

func TestDisablePush(t *testing.T) {
	s := New(Config{Root: writeSite(t), DisablePush: true})
	rr := newPushRecorder()

	s.ServeHTTP(rr, h2Request(t, s, "/index.html"))

	if len(rr.pushes) != 0 {
		t.Fatalf("push disabled but pushed %v", rr.pushes)
	}
}

func TestHeadOmitsBody(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	rr := httptest.NewRecorder()
	r := httptest.NewRequest("HEAD", "/style.css", nil)

	s.ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status is %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("HEAD returned %d body bytes", rr.Body.Len())
	}
}

func TestMissingFileIs404(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, httptest.NewRequest("GET", "/nope.html", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status is %d", rr.Code)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := New(Config{Root: writeSite(t)})
	rr := httptest.NewRecorder()

	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.URL.Path = "/../secret"
	r.URL.RawPath = "/../secret"

	s.ServeHTTP(rr, r)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("traversal got status %d", rr.Code)
	}
}
