package cache

import (
	"strings"
	"testing"
)

// Fuzz Set/Get/Add/Delete under arbitrary string inputs.
// Key/value lengths are capped to keep memory bounded during fuzzing.
func FuzzCache_SetGetDelete(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c := New[string, string](Options[string, string]{MaxSize: 2, DisableRegistration: true})

		c.Set(k, v)
		if got, ok := c.Get(k); !ok || got != v {
			t.Fatalf("after Set/Get: want %q, got %q ok=%v", v, got, ok)
		}
		if c.Add(k, "other") {
			t.Fatalf("Add duplicate returned true")
		}

		// Two more distinct keys push k out of a size-2 cache.
		c.Set(k+"#1", v)
		c.Set(k+"#2", v)
		if _, ok := c.Get(k); ok {
			t.Fatalf("%q must be evicted", k)
		}
		if c.Len() != 2 {
			t.Fatalf("Len = %d, want 2", c.Len())
		}

		if !c.Delete(k + "#2") {
			t.Fatalf("Delete must return true")
		}
		if !c.Add(k, v) {
			t.Fatalf("Add after eviction must return true")
		}
	})
}
