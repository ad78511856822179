package matchy

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"
	"time"
)

// BuilderOptions configures a Builder: a plain struct plus a private
// norm() defaulting method.
type BuilderOptions struct {
	// MatchMode controls case folding for pattern entries.
	// Default: CaseSensitive.
	MatchMode MatchMode

	// BuildEpoch stamps the metadata map's build_epoch field. Nil (the
	// default) takes time.Now().Unix() at Build time; set it explicitly
	// for byte-identical output across repeated builds of the same input.
	BuildEpoch *uint64
}

func (o *BuilderOptions) norm() *BuilderOptions {
	var oo BuilderOptions
	if o != nil {
		oo = *o
	}
	return &oo
}

func (o *BuilderOptions) buildEpoch() uint64 {
	if o.BuildEpoch != nil {
		return *o.BuildEpoch
	}
	return uint64(time.Now().Unix())
}

type prefixEntry struct {
	key   canonKey
	value Value
}

type patternBuildEntry struct {
	pattern string
	value   Value
}

// Builder accumulates prefix and pattern entries and seals them into a
// database image. Build defers all layout decisions (trie shape, section
// offsets) until every entry is known, since the trie can't be
// constructed incrementally one entry at a time.
type Builder struct {
	opts *BuilderOptions

	prefixes []prefixEntry
	patterns []patternBuildEntry

	sealed bool
}

// NewBuilder returns an empty Builder.
func NewBuilder(opts *BuilderOptions) *Builder {
	return &Builder{opts: opts.norm()}
}

// Add classifies keyOrPattern as a prefix or a pattern entry (if it parses
// as an IP address or network it's a prefix, otherwise a pattern) and
// parses jsonPayload into the abstract Value model.
func (b *Builder) Add(keyOrPattern string, jsonPayload []byte) error {
	val, err := decodeJSONPayload(jsonPayload)
	if err != nil {
		return err
	}
	return b.AddTyped(keyOrPattern, val)
}

// AddTyped is the typed-input escape hatch for callers that want a
// non-Double numeric representation without going through JSON text.
func (b *Builder) AddTyped(keyOrPattern string, value Value) error {
	if b.sealed {
		return ErrOutOfOrderAppend
	}
	if key, err := parseKey(keyOrPattern); err == nil {
		b.prefixes = append(b.prefixes, prefixEntry{key: key, value: value})
		return nil
	}
	if _, err := parseGlob(keyOrPattern, b.opts.MatchMode); err != nil {
		return newError(StatusInvalidParam, "%q is neither a valid key nor a valid pattern: %v", keyOrPattern, err)
	}
	b.patterns = append(b.patterns, patternBuildEntry{pattern: keyOrPattern, value: value})
	return nil
}

// Build seals the accumulated entries into a database image and returns
// its bytes. Save writes the same bytes to a file.
func (b *Builder) Build() ([]byte, error) {
	if b.sealed {
		return nil, ErrOutOfOrderAppend
	}
	b.sealed = true

	dw := newDataWriter()

	v4Only := len(b.prefixes) > 0
	for _, pe := range b.prefixes {
		if pe.key.IsV6 {
			v4Only = false
			break
		}
	}

	inserts := make([]trieInsert, 0, len(b.prefixes))
	for _, pe := range b.prefixes {
		off := dw.entryOffset(pe.value)
		if v4Only {
			inserts = append(inserts, trieInsert{Key: pe.key.Bytes, StartBit: v4MappedPrefixBits, Bits: pe.key.v4Bits(), Offset: off})
		} else {
			inserts = append(inserts, trieInsert{Key: pe.key.Bytes, StartBit: 0, Bits: pe.key.Bits, Offset: off})
		}
	}

	var trieNodes []trieNode
	if len(inserts) > 0 {
		trieNodes = buildTrieNodes(inserts)
	}

	// Pattern ids are positions in the lexicographically sorted pattern list.
	sort.SliceStable(b.patterns, func(i, j int) bool { return b.patterns[i].pattern < b.patterns[j].pattern })

	patStrings := make([]string, len(b.patterns))
	patOffsets := make([]uint32, len(b.patterns))
	for i, pat := range b.patterns {
		patStrings[i] = pat.pattern
		patOffsets[i] = dw.entryOffset(pat.value)
	}

	var patternBytes []byte
	if len(b.patterns) > 0 {
		var err error
		patternBytes, err = buildPatternSection(patStrings, patOffsets, b.opts.MatchMode)
		if err != nil {
			return nil, err
		}
	}

	ipVersion := uint16(6)
	if v4Only {
		ipVersion = 4
	}
	metadata := MapValue{
		{Key: "node_count", Value: Uint32Value(uint32(len(trieNodes)))},
		{Key: "record_size", Value: Uint32Value(32)},
		{Key: "ip_version", Value: Uint16Value(ipVersion)},
		{Key: "build_epoch", Value: Uint64Value(b.opts.buildEpoch())},
		{Key: "pattern_count", Value: Uint32Value(uint32(len(b.patterns)))},
		{Key: "description", Value: MapValue{{Key: "en", Value: StringValue("matchy database")}}},
	}
	metadataBytes := encodeValue(nil, metadata)

	var trieBytes []byte
	for _, n := range trieNodes {
		trieBytes = append(trieBytes, encodeTrieNode(n)...)
	}
	dataBytes := dw.buf

	header := make([]byte, headerSize)
	copy(header[0:8], fileMagic[:])
	binary.BigEndian.PutUint32(header[8:12], FormatVersion)
	var flags uint32
	if len(trieNodes) > 0 {
		flags |= flagHasTrie
	}
	if len(b.patterns) > 0 {
		flags |= flagHasPatternIndex
	}
	if v4Only {
		flags |= flagV4Only
	}
	binary.BigEndian.PutUint32(header[12:16], flags)

	sections := sectionOffsets{
		metadataOff: 0,
		metadataLen: uint32(len(metadataBytes)),
		trieOff:     uint32(len(metadataBytes)),
		trieLen:     uint32(len(trieBytes)),
		dataOff:     uint32(len(metadataBytes) + len(trieBytes)),
		dataLen:     uint32(len(dataBytes)),
		patternOff:  uint32(len(metadataBytes) + len(trieBytes) + len(dataBytes)),
		patternLen:  uint32(len(patternBytes)),
	}

	body := make([]byte, 0, len(metadataBytes)+len(trieBytes)+len(dataBytes)+len(patternBytes))
	body = append(body, metadataBytes...)
	body = append(body, trieBytes...)
	body = append(body, dataBytes...)
	body = append(body, patternBytes...)

	sum := crc32.NewIEEE()
	sum.Write(header)
	sum.Write(body)
	footer := encodeFooter(sections, sum.Sum32())

	out := make([]byte, 0, len(header)+len(body)+len(footer))
	out = append(out, header...)
	out = append(out, body...)
	out = append(out, footer...)
	return out, nil
}

// Save seals the Builder and writes the resulting image to path.
func (b *Builder) Save(path string) error {
	out, err := b.Build()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return newError(StatusIOError, "%v", err)
	}
	return nil
}

// --------------------------------------------------------------------
// JSON payload parsing. A hand-rolled token walk is used instead of
// json.Unmarshal into map[string]interface{} because the latter loses key
// order, and Maps must preserve insertion order.

func decodeJSONPayload(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, newError(StatusInvalidData, "%v", err)
	}
	val, err := decodeJSONToken(dec, tok)
	if err != nil {
		return nil, newError(StatusInvalidData, "%v", err)
	}
	return val, nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := MapValue{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				m = append(m, MapEntry{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return m, nil
		case '[':
			arr := ArrayValue{}
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		}
	case string:
		return StringValue(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return DoubleValue(f), nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return nil, fmt.Errorf("json null has no Value representation")
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

// --------------------------------------------------------------------
// Data-section writer with hash-consing: a content-addressed table built
// once during build, not consulted again at read time.

type dataWriter struct {
	buf   []byte
	cache map[string]uint32 // canonical encoding -> offset already written
}

func newDataWriter() *dataWriter {
	return &dataWriter{cache: make(map[string]uint32)}
}

// entryOffset returns the data-section offset holding v's encoding,
// writing it only the first time a given payload is seen. Top-level
// trie/pattern entries call this directly: repeated identical payloads
// share one offset with no indirection, since the caller stores a raw
// offset rather than embedding a Value inline.
func (w *dataWriter) entryOffset(v Value) uint32 {
	sig := string(encodeValue(nil, v))
	if off, ok := w.cache[sig]; ok {
		return off
	}
	start := uint32(len(w.buf))
	w.cache[sig] = start
	w.writeFull(v)
	return start
}

// writeFull appends v's complete encoding at the current write position.
// Any nested value (map value, array element, or map key string) that
// duplicates something already written is replaced with a Pointer rather
// than re-emitted, so repeated map keys and string payloads collapse to a
// single stored copy.
func (w *dataWriter) writeFull(v Value) {
	switch x := v.(type) {
	case MapValue:
		w.buf = encodeTag(w.buf, typeMap, len(x))
		for _, e := range x {
			w.emitChild(StringValue(e.Key))
			w.emitChild(e.Value)
		}
	case ArrayValue:
		w.buf = encodeTag(w.buf, typeArray, len(x))
		for _, e := range x {
			w.emitChild(e)
		}
	default:
		w.buf = encodeValue(w.buf, v)
	}
}

func (w *dataWriter) emitChild(v Value) {
	sig := string(encodeValue(nil, v))
	if off, ok := w.cache[sig]; ok {
		w.buf = encodePointer(w.buf, off)
		return
	}
	start := uint32(len(w.buf))
	w.cache[sig] = start
	w.writeFull(v)
}
