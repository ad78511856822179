package matchy_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bsm/matchy"
)

var _ = Describe("Builder", func() {
	It("accepts a prefix entry with a JSON payload", func() {
		b := matchy.NewBuilder(nil)
		Expect(b.Add("192.0.2.0/24", []byte(`{"country":"US"}`))).To(Succeed())
		out, err := b.Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).NotTo(BeEmpty())
	})

	It("accepts a pattern entry with a JSON payload", func() {
		b := matchy.NewBuilder(nil)
		Expect(b.Add("*.txt", []byte(`{"kind":"text"}`))).To(Succeed())
		out, err := b.Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).NotTo(BeEmpty())
	})

	It("rejects a key that is neither a valid network nor a valid pattern", func() {
		b := matchy.NewBuilder(nil)
		err := b.Add("[unterminated", []byte(`{}`))
		Expect(err).To(HaveOccurred())
	})

	It("rejects JSON null payloads", func() {
		b := matchy.NewBuilder(nil)
		err := b.Add("10.0.0.0/8", []byte(`null`))
		Expect(err).To(HaveOccurred())
	})

	It("preserves object key order through a JSON payload round trip", func() {
		b := matchy.NewBuilder(nil)
		Expect(b.Add("10.0.0.0/8", []byte(`{"z":1,"a":2,"m":3}`))).To(Succeed())
		out, err := b.Build()
		Expect(err).NotTo(HaveOccurred())

		db, err := matchy.OpenBuffer(out, nil)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		res, err := db.Query("10.1.2.3")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Found).To(BeTrue())

		js, err := res.ToJSON()
		Expect(err).NotTo(HaveOccurred())
		Expect(js).To(Equal(`{"z":1,"a":2,"m":3}`))
	})

	It("rejects further Add calls once Build has sealed the builder", func() {
		b := matchy.NewBuilder(nil)
		Expect(b.Add("10.0.0.0/8", []byte(`{}`))).To(Succeed())
		_, err := b.Build()
		Expect(err).NotTo(HaveOccurred())
		err = b.Add("192.0.2.0/24", []byte(`{}`))
		Expect(err).To(HaveOccurred())
	})

	It("produces byte-identical output for identical input, deterministically", func() {
		epoch := uint64(1700000000)
		build := func() []byte {
			b := matchy.NewBuilder(&matchy.BuilderOptions{BuildEpoch: &epoch})
			Expect(b.Add("192.0.2.0/24", []byte(`{"a":1}`))).To(Succeed())
			Expect(b.Add("198.51.100.0/24", []byte(`{"a":1}`))).To(Succeed())
			Expect(b.Add("*.txt", []byte(`{"kind":"text"}`))).To(Succeed())
			out, err := b.Build()
			Expect(err).NotTo(HaveOccurred())
			return out
		}
		Expect(build()).To(Equal(build()))
	})

	It("dedupes identical payloads to a single data-section offset", func() {
		b := matchy.NewBuilder(nil)
		Expect(b.Add("192.0.2.0/24", []byte(`{"a":1}`))).To(Succeed())
		Expect(b.Add("198.51.100.0/24", []byte(`{"a":1}`))).To(Succeed())
		out, err := b.Build()
		Expect(err).NotTo(HaveOccurred())

		db, err := matchy.OpenBuffer(out, nil)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		r1, err := db.Query("192.0.2.1")
		Expect(err).NotTo(HaveOccurred())
		r2, err := db.Query("198.51.100.1")
		Expect(err).NotTo(HaveOccurred())

		e1, err := r1.Entry()
		Expect(err).NotTo(HaveOccurred())
		e2, err := r2.Entry()
		Expect(err).NotTo(HaveOccurred())
		Expect(e1).To(Equal(e2))

		v1, err := e1.Value()
		Expect(err).NotTo(HaveOccurred())
		v2, err := e2.Value()
		Expect(err).NotTo(HaveOccurred())
		Expect(v1).To(Equal(v2))
	})

	It("saves to a file via Save", func() {
		b := matchy.NewBuilder(nil)
		Expect(b.Add("10.0.0.0/8", []byte(`{"a":1}`))).To(Succeed())
		path := newTempPath()
		Expect(b.Save(path)).To(Succeed())

		db, err := matchy.Open(path, nil)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		res, err := db.Query("10.1.1.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Found).To(BeTrue())
	})
})
