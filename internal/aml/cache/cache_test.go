package cache

import "testing"

func TestLFUEvictionKeepsSizeAtMax(t *testing.T) {
	c := New(Options{MaxSize: 3, Policy: PolicyLFU})

	for i := 0; i < 10; i++ {
		c.Set(string(rune('a'+i)), i)
		if size := c.GetStats().CurrentSize; size > 3 {
			t.Fatalf("cache exceeded MaxSize after inserting %d entries: size=%d", i+1, size)
		}
	}
}

func TestLFUEvictsLeastFrequentlyUsed(t *testing.T) {
	c := New(Options{MaxSize: 2, Policy: PolicyLFU})

	c.Set("a", 1)
	c.Set("b", 2)
	// Touch "a" so it outranks "b" in frequency before "c" forces an
	// eviction.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted as the least-frequently-used entry")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected c to survive eviction")
	}
}
