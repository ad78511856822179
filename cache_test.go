package matchy

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("queryCache", func() {
	It("returns a miss for a key never stored", func() {
		c := newQueryCache(10)
		_, ok := c.get("missing")
		Expect(ok).To(BeFalse())
	})

	It("returns what was put", func() {
		c := newQueryCache(10)
		c.put("k", WalkResult{Found: true, PrefixLen: 24, Offset: 7})
		got, ok := c.get("k")
		Expect(ok).To(BeTrue())
		Expect(got.Offset).To(Equal(uint32(7)))
	})

	It("evicts the least recently used entry once over capacity", func() {
		c := newQueryCache(2)
		c.put("a", WalkResult{Offset: 1})
		c.put("b", WalkResult{Offset: 2})
		c.put("c", WalkResult{Offset: 3})

		_, ok := c.get("a")
		Expect(ok).To(BeFalse())
		_, ok = c.get("b")
		Expect(ok).To(BeTrue())
		_, ok = c.get("c")
		Expect(ok).To(BeTrue())
	})

	It("refreshes recency on get, protecting a recently-read entry from eviction", func() {
		c := newQueryCache(2)
		c.put("a", WalkResult{Offset: 1})
		c.put("b", WalkResult{Offset: 2})
		c.get("a") // a is now most-recently-used
		c.put("c", WalkResult{Offset: 3})

		_, ok := c.get("b")
		Expect(ok).To(BeFalse())
		_, ok = c.get("a")
		Expect(ok).To(BeTrue())
	})

	It("is a permanent no-op when constructed with capacity 0", func() {
		c := newQueryCache(0)
		c.put("k", WalkResult{Offset: 1})
		_, ok := c.get("k")
		Expect(ok).To(BeFalse())
	})
})
