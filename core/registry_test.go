package core

import (
	"context"
	"testing"
)

func namedHandler(name string, order *[]string) Handler {
	return HandlerFunc(func(_ context.Context, _ *Txn) Result {
		*order = append(*order, name)
		return Continue()
	})
}

func runAll(handlers []Handler) {
	t := &Txn{}
	for _, h := range handlers {
		h.Serve(context.Background(), t)
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	var order []string
	r := NewRegistry()
	r.Register(PhasePre, "", 10, namedHandler("second", &order))
	r.Register(PhasePre, "", 0, namedHandler("first", &order))
	r.Register(PhasePre, "", 20, namedHandler("third", &order))
	r.Freeze()

	runAll(r.HandlersFor(PhasePre, "GET", "/whatever"))

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("order is %v", order)
	}
}

func TestRegistryStableTies(t *testing.T) {
	var order []string
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c", "d"} {
		r.Register(PhasePost, "", 5, namedHandler(name, &order))
	}
	r.Freeze()

	runAll(r.HandlersFor(PhasePost, "GET", "/"))

	if len(order) != 4 {
		t.Fatalf("got %d handlers", len(order))
	}
	for i, name := range []string{"a", "b", "c", "d"} {
		if order[i] != name {
			t.Fatalf("tie order not registration order: %v", order)
		}
	}
}

func TestRegistryPatterns(t *testing.T) {
	r := NewRegistry()
	r.Register(PhasePresent, "*.html", 0, HandlerFunc(func(context.Context, *Txn) Result { return Continue() }))
	r.Register(PhasePresent, "/static/", 0, HandlerFunc(func(context.Context, *Txn) Result { return Continue() }))
	r.Register(PhasePresent, "/exact", 0, HandlerFunc(func(context.Context, *Txn) Result { return Continue() }))
	r.Freeze()

	cases := []struct {
		path string
		want int
	}{
		{"/index.html", 1},
		{"/static/app.js", 1},
		{"/static/page.html", 2},
		{"/exact", 1},
		{"/exactly", 0},
		{"/other.css", 0},
	}
	for _, c := range cases {
		if got := len(r.HandlersFor(PhasePresent, "GET", c.path)); got != c.want {
			t.Fatalf("HandlersFor(%q) matched %d handlers, want %d", c.path, got, c.want)
		}
	}
}

func TestRegistryMethodFilter(t *testing.T) {
	r := NewRegistry()
	r.Register(PhasePre, "", 0, HandlerFunc(func(context.Context, *Txn) Result { return Continue() }),
		WithMethods("POST", "PUT"))
	r.Freeze()

	if got := len(r.HandlersFor(PhasePre, "GET", "/")); got != 0 {
		t.Fatalf("GET matched %d handlers", got)
	}
	if got := len(r.HandlersFor(PhasePre, "POST", "/")); got != 1 {
		t.Fatalf("POST matched %d handlers", got)
	}
}

func TestRegisterAfterFreezePanics(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	defer func() {
		if recover() == nil {
			t.Fatal("Register after Freeze did not panic")
		}
	}()
	r.Register(PhasePrime, "", 0, HandlerFunc(func(context.Context, *Txn) Result { return Continue() }))
}
