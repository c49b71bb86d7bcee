package link

import (
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/wasmbus/errors"
)

func mustInterface(t *testing.T, s string) Interface {
	t.Helper()
	iface, err := ParseInterface(s)
	if err != nil {
		t.Fatalf("ParseInterface(%q): %v", s, err)
	}
	return iface
}

func TestResolveDefault(t *testing.T) {
	graph := NewGraph()
	graph.Put(DefaultName, "wasi:keyvalue/store", "kv-redis")

	res, err := Resolve(NewTargets(), graph, "wasi:keyvalue/store@0.2.0", "caller")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Instance != "wasi:keyvalue/store" {
		t.Errorf("Instance = %q, want wasi:keyvalue/store", res.Instance)
	}
	if res.LinkName != DefaultName {
		t.Errorf("LinkName = %q, want %q", res.LinkName, DefaultName)
	}
	if res.Destination != "kv-redis" {
		t.Errorf("Destination = %q, want kv-redis", res.Destination)
	}
}

func TestResolveSelectedLink(t *testing.T) {
	graph := NewGraph()
	graph.Put(DefaultName, "wasi:keyvalue/store", "kv-redis")
	graph.Put("cache", "wasi:keyvalue/store", "kv-memory")

	targets := NewTargets()
	store := mustInterface(t, "wasi:keyvalue/store@0.2.0")

	targets.Select("cache", store)
	res, err := Resolve(targets, graph, "wasi:keyvalue/store", "caller")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Destination != "kv-memory" || res.LinkName != "cache" {
		t.Errorf("Resolve = %+v, want cache -> kv-memory", res)
	}

	targets.Select(DefaultName, store)
	if targets.Len() != 0 {
		t.Errorf("Len = %d after selecting default, want 0", targets.Len())
	}
	res, err = Resolve(targets, graph, "wasi:keyvalue/store", "caller")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Destination != "kv-redis" {
		t.Errorf("Destination = %q after reset, want kv-redis", res.Destination)
	}
}

func TestResolveErrors(t *testing.T) {
	graph := NewGraph()
	graph.Put(DefaultName, "wasi:keyvalue/store", "kv-redis")

	targets := NewTargets()
	targets.Select("missing", mustInterface(t, "wasi:keyvalue/store"))

	_, err := Resolve(targets, graph, "wasi:keyvalue/store", "caller")
	if !errors.HasKind(err, errors.KindLinkNotFound) {
		t.Fatalf("Resolve with unknown link = %v, want link_not_found", err)
	}
	if !strings.Contains(err.Error(), "link `missing` not found for instance `wasi:keyvalue/store`") {
		t.Errorf("unexpected message %q", err.Error())
	}

	_, err = Resolve(NewTargets(), graph, "wasi:blobstore/blobstore", "caller")
	if !errors.HasKind(err, errors.KindNotLinked) {
		t.Fatalf("Resolve with unwired interface = %v, want not_linked", err)
	}
	for _, s := range []string{"default", "wasi:blobstore/blobstore", "caller"} {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("error %q should name %q", err.Error(), s)
		}
	}
}

func TestSelectValidated(t *testing.T) {
	graph := NewGraph()
	graph.Put("cache", "wasi:keyvalue/store", "kv-memory")
	graph.Put(DefaultName, "wasi:keyvalue/store", "kv-redis")
	graph.Put(DefaultName, "wasi:keyvalue/atomics", "kv-redis")

	store := mustInterface(t, "wasi:keyvalue/store")
	atomics := mustInterface(t, "wasi:keyvalue/atomics@0.2.0")

	t.Run("rejects whole batch", func(t *testing.T) {
		targets := NewTargets()
		err := SelectValidated(targets, graph, "cache", store, atomics)
		if err == nil {
			t.Fatal("expected error")
		}
		want := "interface `wasi:keyvalue/atomics` does not have an existing link with name `cache`"
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want %q", err.Error(), want)
		}
		if targets.Len() != 0 {
			t.Errorf("Len = %d after rejected selection, want 0", targets.Len())
		}
	})

	t.Run("names first offending interface", func(t *testing.T) {
		err := SelectValidated(NewTargets(), graph, "nope", atomics, store)
		var e *errors.Error
		if !stderrors.As(err, &e) {
			t.Fatalf("error = %v, want *errors.Error", err)
		}
		if e.Interface != "wasi:keyvalue/atomics" {
			t.Errorf("Interface = %q, want wasi:keyvalue/atomics", e.Interface)
		}
	})

	t.Run("applies when every interface is wired", func(t *testing.T) {
		targets := NewTargets()
		if err := SelectValidated(targets, graph, "cache", store); err != nil {
			t.Fatalf("SelectValidated: %v", err)
		}
		if got := targets.Get("wasi:keyvalue/store@0.2.0"); got != "cache" {
			t.Errorf("Get = %q, want cache", got)
		}
		if err := SelectValidated(targets, graph, DefaultName, store, atomics); err != nil {
			t.Fatalf("SelectValidated(default): %v", err)
		}
		if targets.Len() != 0 {
			t.Errorf("Len = %d, want 0", targets.Len())
		}
	})
}

func TestGraph(t *testing.T) {
	g := NewGraph()
	g.Put("b", "wasi:http/outgoing-handler@0.2.0", "httpclient")
	g.Put("a", "wasi:keyvalue/store", "kv")

	if got := g.Links(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Links = %v, want [a b]", got)
	}
	if !g.Has("b", "wasi:http/outgoing-handler") {
		t.Error("Put should canonicalize the instance")
	}

	snap := g.Snapshot()
	snap["a"]["wasi:keyvalue/store"] = "mutated"
	if dest, _, _ := g.Lookup("a", "wasi:keyvalue/store"); dest != "kv" {
		t.Errorf("Snapshot must be a copy, Lookup = %q", dest)
	}

	g.Remove("a", "wasi:keyvalue/store")
	if _, hasLink, _ := g.Lookup("a", "wasi:keyvalue/store"); hasLink {
		t.Error("empty link should be removed")
	}

	g.Replace(map[string]map[string]string{"c": {"wasi:keyvalue/batch@0.2.0": "kv"}})
	if g.Has("b", "wasi:http/outgoing-handler") {
		t.Error("Replace should drop previous links")
	}
	if !g.Has("c", "wasi:keyvalue/batch") {
		t.Error("Replace should canonicalize keys")
	}
}

func TestConcurrentResolveAndSelect(t *testing.T) {
	graph := NewGraph()
	graph.Put(DefaultName, "wasi:keyvalue/store", "kv-redis")
	graph.Put("cache", "wasi:keyvalue/store", "kv-memory")

	targets := NewTargets()
	store := mustInterface(t, "wasi:keyvalue/store")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := DefaultName
			if i%2 == 0 {
				name = "cache"
			}
			for j := 0; j < 200; j++ {
				targets.Select(name, store)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res, err := Resolve(targets, graph, "wasi:keyvalue/store", "caller")
				if err != nil {
					t.Errorf("Resolve: %v", err)
					return
				}
				if res.Destination != "kv-redis" && res.Destination != "kv-memory" {
					t.Errorf("Destination = %q", res.Destination)
					return
				}
			}
		}()
	}
	wg.Wait()
}
