package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-server/hearth/core"
)

func originServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "keep-alive")
		w.Write([]byte(`["a","b"]`))
	})
	r.Get("/api/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/items", http.StatusFound)
	})
	r.Get("/api/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func upstreamFor(t *testing.T, srv *httptest.Server, timeout time.Duration) *HTTPUpstream {
	t.Helper()
	origin, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return NewHTTP(HTTPConfig{Origin: *origin, Timeout: timeout})
}

func gatewayTxn(path, query string) *core.Txn {
	id, err := core.NewIdentity("GET", "example.com", path, query, nil, nil)
	if err != nil {
		panic(err)
	}
	return &core.Txn{
		Method:   "GET",
		Host:     "example.com",
		Path:     path,
		Query:    query,
		Header:   make(http.Header),
		Identity: id,
	}
}

func TestHTTPUpstreamForwards(t *testing.T) {
	srv := originServer(t)
	up := upstreamFor(t, srv, 0)

	resp, err := up.RoundTrip(context.Background(), gatewayTxn("/api/items", ""))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != `["a","b"]` {
		t.Fatalf("got %d %q", resp.Status, resp.Body)
	}
	if resp.Header.Get("Connection") != "" {
		t.Fatal("hop-by-hop header forwarded")
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("content type is %q", resp.Header.Get("Content-Type"))
	}
}

func TestHTTPUpstreamReturnsRedirectsUnfollowed(t *testing.T) {
	srv := originServer(t)
	up := upstreamFor(t, srv, 0)

	resp, err := up.RoundTrip(context.Background(), gatewayTxn("/api/redirect", ""))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusFound {
		t.Fatalf("redirect was followed, status %d", resp.Status)
	}
}

func TestPreOverridesPipeline(t *testing.T) {
	srv := originServer(t)
	up := upstreamFor(t, srv, 0)

	res := Pre(up).Serve(context.Background(), gatewayTxn("/api/items", ""))
	if res == core.Continue() {
		t.Fatal("gateway handler continued instead of overriding")
	}
}

func TestPreFailsAsGatewayError(t *testing.T) {
	srv := originServer(t)
	srv.Close()
	up := upstreamFor(t, srv, 0)

	res := Pre(up).Serve(context.Background(), gatewayTxn("/api/items", ""))
	if res == core.Continue() {
		t.Fatal("dead upstream did not fail")
	}
}

func TestHTTPUpstreamTimeout(t *testing.T) {
	srv := originServer(t)
	up := upstreamFor(t, srv, 50*time.Millisecond)

	if _, err := up.RoundTrip(context.Background(), gatewayTxn("/api/slow", "")); err == nil {
		t.Fatal("slow upstream did not time out")
	}
}
