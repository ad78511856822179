package matchy

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("pattern index", func() {
	It("restores pattern strings and data offsets after a build/parse round trip", func() {
		patterns := []string{"hello", "world"}
		offsets := []uint32{10, 20}
		section, err := buildPatternSection(patterns, offsets, CaseSensitive)
		Expect(err).NotTo(HaveOccurred())

		idx, err := newPatternIndex(section)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.PatternCount()).To(Equal(2))

		s0, err := idx.PatternStringByID(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(s0).To(Equal("hello"))

		off1, err := idx.DataOffsetByID(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(off1).To(Equal(uint32(20)))
	})

	It("finds candidates whose meta-word occurs in the text", func() {
		patterns := []string{"*.txt", "*.log", "test_*"}
		offsets := []uint32{0, 0, 0}
		section, err := buildPatternSection(patterns, offsets, CaseSensitive)
		Expect(err).NotTo(HaveOccurred())
		idx, err := newPatternIndex(section)
		Expect(err).NotTo(HaveOccurred())

		got := idx.candidates("test_file.txt")
		Expect(got).To(ConsistOf(uint32(0), uint32(2)))
	})

	It("returns no candidates when no meta-word occurs", func() {
		patterns := []string{"*.txt", "hello", "*world*"}
		offsets := []uint32{0, 0, 0}
		section, err := buildPatternSection(patterns, offsets, CaseSensitive)
		Expect(err).NotTo(HaveOccurred())
		idx, err := newPatternIndex(section)
		Expect(err).NotTo(HaveOccurred())

		Expect(idx.candidates("nothing.rs")).To(BeEmpty())
	})

	It("always includes wildcard-only patterns as candidates", func() {
		patterns := []string{"*", "literal"}
		offsets := []uint32{0, 0}
		section, err := buildPatternSection(patterns, offsets, CaseSensitive)
		Expect(err).NotTo(HaveOccurred())
		idx, err := newPatternIndex(section)
		Expect(err).NotTo(HaveOccurred())

		got := idx.candidates("whatever")
		Expect(got).To(ContainElement(uint32(0)))
	})

	It("folds case in candidate search under CaseInsensitive mode", func() {
		patterns := []string{"Test_*"}
		offsets := []uint32{0}
		section, err := buildPatternSection(patterns, offsets, CaseInsensitive)
		Expect(err).NotTo(HaveOccurred())
		idx, err := newPatternIndex(section)
		Expect(err).NotTo(HaveOccurred())

		Expect(idx.candidates("test_file.txt")).To(ContainElement(uint32(0)))
	})
})
