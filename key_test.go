package matchy

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseKey", func() {
	It("maps a bare v4 address into the v4-mapped v6 range", func() {
		k, err := parseKey("192.0.2.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(k.IsV6).To(BeFalse())
		Expect(k.Bits).To(Equal(v4MappedPrefixBits + 32))
		Expect(k.Bytes[10]).To(Equal(byte(0xff)))
		Expect(k.Bytes[11]).To(Equal(byte(0xff)))
		Expect(k.Bytes[12:16]).To(Equal([]byte{192, 0, 2, 1}))
	})

	It("parses a v4 CIDR network", func() {
		k, err := parseKey("192.0.2.0/24")
		Expect(err).NotTo(HaveOccurred())
		Expect(k.v4Bits()).To(Equal(24))
	})

	It("parses a bare v6 address", func() {
		k, err := parseKey("2001:db8::1")
		Expect(err).NotTo(HaveOccurred())
		Expect(k.IsV6).To(BeTrue())
		Expect(k.Bits).To(Equal(128))
	})

	It("parses a v6 CIDR network", func() {
		k, err := parseKey("2001:db8::/32")
		Expect(err).NotTo(HaveOccurred())
		Expect(k.IsV6).To(BeTrue())
		Expect(k.Bits).To(Equal(32))
	})

	It("treats a v4-mapped v6 literal the same as the bare v4 form", func() {
		mapped, err := parseKey("::ffff:192.0.2.1")
		Expect(err).NotTo(HaveOccurred())
		plain, err := parseKey("192.0.2.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(mapped.Bytes).To(Equal(plain.Bytes))
		Expect(mapped.IsV6).To(Equal(plain.IsV6))
	})

	It("rejects a malformed key", func() {
		_, err := parseKey("not-an-ip")
		Expect(err).To(HaveOccurred())
	})
})
