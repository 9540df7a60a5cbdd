package embedding

import (
	"sync"
	"testing"
)

func TestCache_getSet(t *testing.T) {
	c := NewCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
}

func TestCache_getRefreshesRecency(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a")
	c.Set("c", []float32{3}) // evicts b, not a
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain after Get refreshed it")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
}

func TestCache_setUpdatesExisting(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("a", []float32{9, 9})
	v, ok := c.Get("a")
	if !ok || len(v) != 2 || v[0] != 9 {
		t.Errorf("Get after update: got %v, %v", v, ok)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
}

func TestCache_zeroCapacityDisables(t *testing.T) {
	c := NewCache(0)
	c.Set("a", []float32{1})
	if _, ok := c.Get("a"); ok {
		t.Error("expected zero-capacity cache to store nothing")
	}
	if got := c.Len(); got != 0 {
		t.Errorf("Len = %d, want 0", got)
	}
}

func TestCache_concurrentAccess(t *testing.T) {
	c := NewCache(16)
	keys := []string{"a", "b", "c", "d", "e"}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := keys[i%len(keys)]
				c.Set(k, []float32{float32(i)})
				c.Get(k)
			}
		}()
	}
	wg.Wait()
	if got := c.Len(); got != len(keys) {
		t.Errorf("Len = %d, want %d", got, len(keys))
	}
}
