package config

import (
	"sync"
	"testing"
)

func TestBundle(t *testing.T) {
	src := map[string]string{"region": "eu", "tier": "gold"}
	b := NewBundle(src)
	src["region"] = "us"

	if v, ok := b.Get("region"); !ok || v != "eu" {
		t.Errorf("Get(region) = %q, %v; want eu, true", v, ok)
	}
	if _, ok := b.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}

	all := b.All()
	all["tier"] = "bronze"
	if v, _ := b.Get("tier"); v != "gold" {
		t.Errorf("All must return a copy, tier = %q", v)
	}

	if keys := b.Keys(); len(keys) != 2 || keys[0] != "region" || keys[1] != "tier" {
		t.Errorf("Keys = %v", keys)
	}

	b.Update(map[string]string{"only": "one"})
	if _, ok := b.Get("region"); ok {
		t.Error("Update should replace the whole set")
	}
	if len(b.All()) != 1 {
		t.Errorf("All = %v after update", b.All())
	}
}

func TestStore(t *testing.T) {
	s := NewStore(nil)
	if got := s.GetAll(); len(got) != 0 {
		t.Errorf("empty store GetAll = %v", got)
	}

	first := NewBundle(map[string]string{"k": "1"})
	s.Swap(first)
	if v, _ := s.Get("k"); v != "1" {
		t.Errorf("Get(k) = %q, want 1", v)
	}

	prev := s.Swap(NewBundle(map[string]string{"k": "2"}))
	if prev != first {
		t.Error("Swap should return the previous bundle")
	}
	if v, _ := s.Get("k"); v != "2" {
		t.Errorf("Get(k) = %q after swap, want 2", v)
	}

	first.Update(map[string]string{"k": "stale"})
	if v, _ := s.Get("k"); v != "2" {
		t.Errorf("old bundle should no longer be visible, got %q", v)
	}
}

func TestStoreConcurrentSwap(t *testing.T) {
	s := NewStore(NewBundle(map[string]string{"k": "a"}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s.Swap(NewBundle(map[string]string{"k": "b"}))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if v, ok := s.Get("k"); !ok || (v != "a" && v != "b") {
					t.Errorf("Get(k) = %q, %v", v, ok)
					return
				}
			}
		}()
	}
	wg.Wait()
}
