package matchy

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func mustKey(s string) canonKey {
	k, err := parseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

var _ = Describe("trie", func() {
	It("resolves an exact v4-only insert", func() {
		k := mustKey("192.0.2.0/24")
		inserts := []trieInsert{
			{Key: k.Bytes, StartBit: v4MappedPrefixBits, Bits: k.v4Bits(), Offset: 42},
		}
		nodes := buildTrieNodes(inserts)
		w := newTrieWalker(flatBytes(nodes), true)

		probe := mustKey("192.0.2.17")
		wr, err := w.walk(probe.Bytes, probe.IsV6)
		Expect(err).NotTo(HaveOccurred())
		Expect(wr.Found).To(BeTrue())
		Expect(wr.PrefixLen).To(Equal(24))
		Expect(wr.Offset).To(Equal(uint32(42)))
	})

	It("returns not-found outside the inserted prefix", func() {
		k := mustKey("192.0.2.0/24")
		inserts := []trieInsert{
			{Key: k.Bytes, StartBit: v4MappedPrefixBits, Bits: k.v4Bits(), Offset: 42},
		}
		nodes := buildTrieNodes(inserts)
		w := newTrieWalker(flatBytes(nodes), true)

		probe := mustKey("198.51.100.1")
		wr, err := w.walk(probe.Bytes, probe.IsV6)
		Expect(err).NotTo(HaveOccurred())
		Expect(wr.Found).To(BeFalse())
	})

	It("prefers the more specific of two overlapping prefixes", func() {
		broad := mustKey("10.0.0.0/8")
		narrow := mustKey("10.1.0.0/16")
		inserts := []trieInsert{
			{Key: broad.Bytes, StartBit: v4MappedPrefixBits, Bits: broad.v4Bits(), Offset: 1},
			{Key: narrow.Bytes, StartBit: v4MappedPrefixBits, Bits: narrow.v4Bits(), Offset: 2},
		}
		nodes := buildTrieNodes(inserts)
		w := newTrieWalker(flatBytes(nodes), true)

		inNarrow := mustKey("10.1.2.3")
		wr, err := w.walk(inNarrow.Bytes, inNarrow.IsV6)
		Expect(err).NotTo(HaveOccurred())
		Expect(wr.Found).To(BeTrue())
		Expect(wr.Offset).To(Equal(uint32(2)))
		Expect(wr.PrefixLen).To(Equal(16))

		inBroadOnly := mustKey("10.2.0.1")
		wr2, err := w.walk(inBroadOnly.Bytes, inBroadOnly.IsV6)
		Expect(err).NotTo(HaveOccurred())
		Expect(wr2.Found).To(BeTrue())
		Expect(wr2.Offset).To(Equal(uint32(1)))
		Expect(wr2.PrefixLen).To(Equal(8))
	})

	It("canonicalizes identical subtrees to shrink node count", func() {
		// 10/24 and 11/24 differ only in bit 7, so the two chains below
		// that bit are identical subtrees when both end in the same offset.
		a := mustKey("10.0.0.0/24")
		b := mustKey("11.0.0.0/24")
		same := []trieInsert{
			{Key: a.Bytes, StartBit: v4MappedPrefixBits, Bits: a.v4Bits(), Offset: 99},
			{Key: b.Bytes, StartBit: v4MappedPrefixBits, Bits: b.v4Bits(), Offset: 99},
		}
		nodes := buildTrieNodes(same)

		distinct := []trieInsert{
			{Key: a.Bytes, StartBit: v4MappedPrefixBits, Bits: a.v4Bits(), Offset: 99},
			{Key: b.Bytes, StartBit: v4MappedPrefixBits, Bits: b.v4Bits(), Offset: 100},
		}
		nodesDistinct := buildTrieNodes(distinct)

		Expect(len(nodes)).To(BeNumerically("<", len(nodesDistinct)))
	})

	It("rejects an IPv6 key against a v4-only trie", func() {
		k := mustKey("192.0.2.0/24")
		inserts := []trieInsert{
			{Key: k.Bytes, StartBit: v4MappedPrefixBits, Bits: k.v4Bits(), Offset: 1},
		}
		nodes := buildTrieNodes(inserts)
		w := newTrieWalker(flatBytes(nodes), true)

		v6 := mustKey("2001:db8::1")
		_, err := w.walk(v6.Bytes, v6.IsV6)
		Expect(err).To(MatchError(ErrIPv6InIPv4DB))
	})
})

func flatBytes(nodes []trieNode) []byte {
	var out []byte
	for _, n := range nodes {
		out = append(out, encodeTrieNode(n)...)
	}
	return out
}
