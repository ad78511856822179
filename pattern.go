package matchy

import (
	"encoding/binary"
	"sort"
	"strings"
)

// Pattern section layout:
//
//	header:   nodeCount(4) edgeCount(4) outputCount(4) patternCount(4) matchMode(1) pad(3)
//	nodes:    nodeCount * acNodeSize    (fail, edgeStart, edgeCount, outStart, outCount, isFinal, pad)
//	edges:    edgeCount * acEdgeSize    (char, pad, target) sorted by char per node
//	outputs:  outputCount * 4           (pattern id, BE uint32)
//	patterns: patternCount * patternEntrySize (strOffset, strLen, dataOffset, wildcardOnly, pad)
//	strings:  raw UTF-8 pattern text, referenced by offset/len
//
// Grounded on original_source/src/offset_format.rs's ParaglobHeader/ACNode/
// ACEdge/PatternEntry struct layout: the same sections in the same order,
// flattened to plain byte-offset slices instead of repr(C) struct casts
// since mmap-go hands back a []byte, not a typed pointer. The automaton
// itself is hand-rolled (not imported) because it must restore by this
// exact structural mapping rather than through an opaque library type.
const (
	acNodeSize        = 4 + 4 + 2 + 4 + 2 + 1 + 1
	acEdgeSize        = 1 + 3 + 4
	patternEntrySize  = 4 + 4 + 4 + 1 + 3
	patternHeaderSize = 4 + 4 + 4 + 4 + 1 + 3
)

type acNode struct {
	fail      uint32
	edgeStart uint32
	edgeCount uint16
	outStart  uint32
	outCount  uint16
	isFinal   bool
}

type acEdge struct {
	char   byte
	target uint32
}

type patternEntry struct {
	strOffset    uint32
	strLen       uint32
	dataOffset   uint32
	wildcardOnly bool
}

func encodeACNode(n acNode) []byte {
	buf := make([]byte, acNodeSize)
	binary.BigEndian.PutUint32(buf[0:4], n.fail)
	binary.BigEndian.PutUint32(buf[4:8], n.edgeStart)
	binary.BigEndian.PutUint16(buf[8:10], n.edgeCount)
	binary.BigEndian.PutUint32(buf[10:14], n.outStart)
	binary.BigEndian.PutUint16(buf[14:16], n.outCount)
	if n.isFinal {
		buf[16] = 1
	}
	return buf
}

func decodeACNode(raw []byte) acNode {
	return acNode{
		fail:      binary.BigEndian.Uint32(raw[0:4]),
		edgeStart: binary.BigEndian.Uint32(raw[4:8]),
		edgeCount: binary.BigEndian.Uint16(raw[8:10]),
		outStart:  binary.BigEndian.Uint32(raw[10:14]),
		outCount:  binary.BigEndian.Uint16(raw[14:16]),
		isFinal:   raw[16] != 0,
	}
}

func encodeACEdge(e acEdge) []byte {
	buf := make([]byte, acEdgeSize)
	buf[0] = e.char
	binary.BigEndian.PutUint32(buf[4:8], e.target)
	return buf
}

func decodeACEdge(raw []byte) acEdge {
	return acEdge{char: raw[0], target: binary.BigEndian.Uint32(raw[4:8])}
}

func encodePatternEntry(e patternEntry) []byte {
	buf := make([]byte, patternEntrySize)
	binary.BigEndian.PutUint32(buf[0:4], e.strOffset)
	binary.BigEndian.PutUint32(buf[4:8], e.strLen)
	binary.BigEndian.PutUint32(buf[8:12], e.dataOffset)
	if e.wildcardOnly {
		buf[12] = 1
	}
	return buf
}

func decodePatternEntry(raw []byte) patternEntry {
	return patternEntry{
		strOffset:    binary.BigEndian.Uint32(raw[0:4]),
		strLen:       binary.BigEndian.Uint32(raw[4:8]),
		dataOffset:   binary.BigEndian.Uint32(raw[8:12]),
		wildcardOnly: raw[12] != 0,
	}
}

// --------------------------------------------------------------------
// Build side: keyword trie over every pattern's meta-words, with
// Aho-Corasick failure links, merged in breadth-first order so that every node's
// output set already includes everything reachable through its failure
// chain.

type kwTrieNode struct {
	children map[byte]int
	fail     int
	patterns map[uint32]struct{}
}

func newKwTrieNode() *kwTrieNode {
	return &kwTrieNode{children: map[byte]int{}, patterns: map[uint32]struct{}{}}
}

// buildKeywordAutomaton inserts every (pattern id, meta-word) pair into a
// shared trie, links failure pointers breadth-first (the standard
// Aho-Corasick construction), and merges each node's pattern set with its
// failure node's so a single walk surfaces every pattern whose meta-word
// ends at or before the current position.
func buildKeywordAutomaton(builds []patternBuild) (nodes []*kwTrieNode, order []int) {
	nodes = []*kwTrieNode{newKwTrieNode()}

	for _, b := range builds {
		for _, w := range b.words {
			cur := 0
			for i := 0; i < len(w); i++ {
				c := w[i]
				next, ok := nodes[cur].children[c]
				if !ok {
					nodes = append(nodes, newKwTrieNode())
					next = len(nodes) - 1
					nodes[cur].children[c] = next
				}
				cur = next
			}
			nodes[cur].patterns[b.id] = struct{}{}
		}
	}

	fail := make([]int, len(nodes))
	queue := []int{0}
	order = []int{}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		chars := make([]byte, 0, len(nodes[n].children))
		for c := range nodes[n].children {
			chars = append(chars, c)
		}
		sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })

		for _, c := range chars {
			child := nodes[n].children[c]
			if n == 0 {
				fail[child] = 0
			} else {
				f := fail[n]
				target := 0
				for f != 0 {
					if nf, ok := nodes[f].children[c]; ok {
						target = nf
						break
					}
					f = fail[f]
				}
				if target == 0 {
					if nf, ok := nodes[0].children[c]; ok && nf != child {
						target = nf
					}
				}
				fail[child] = target
			}
			queue = append(queue, child)
		}
	}

	for _, n := range order {
		if n == 0 {
			continue
		}
		nodes[n].fail = fail[n]
		for pid := range nodes[fail[n]].patterns {
			nodes[n].patterns[pid] = struct{}{}
		}
	}
	return nodes, order
}

// patternBuild pairs a pattern's parsed glob with the meta-words the
// keyword automaton should index it under.
type patternBuild struct {
	id     uint32
	source string
	words  []string
	isWild bool // true if the pattern has no literal segments at all
}

// buildPatternSection compiles every pattern string into the on-disk
// section format described above. dataOffsets[i] is pattern i's payload
// offset into the data section.
func buildPatternSection(patterns []string, dataOffsets []uint32, mode MatchMode) ([]byte, error) {
	builds := make([]patternBuild, len(patterns))
	for i, p := range patterns {
		g, err := parseGlob(p, mode)
		if err != nil {
			return nil, newError(StatusInvalidData, "pattern %q: %v", p, err)
		}
		words := g.metaWords()
		builds[i] = patternBuild{id: uint32(i), source: p, words: words, isWild: len(words) == 0}
	}

	trieNodes, order := buildKeywordAutomaton(builds)
	newID := make(map[int]int, len(order))
	for idx, old := range order {
		newID[old] = idx
	}

	var edges []acEdge
	var outputs []uint32
	flat := make([]acNode, len(order))

	for idx, old := range order {
		n := trieNodes[old]

		chars := make([]byte, 0, len(n.children))
		for c := range n.children {
			chars = append(chars, c)
		}
		sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })

		edgeStart := len(edges)
		for _, c := range chars {
			edges = append(edges, acEdge{char: c, target: uint32(newID[n.children[c]])})
		}

		pids := make([]uint32, 0, len(n.patterns))
		for pid := range n.patterns {
			pids = append(pids, pid)
		}
		sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
		outStart := len(outputs)
		outputs = append(outputs, pids...)

		fail := 0
		if old != 0 {
			fail = newID[n.fail]
		}

		flat[idx] = acNode{
			fail:      uint32(fail),
			edgeStart: uint32(edgeStart),
			edgeCount: uint16(len(chars)),
			outStart:  uint32(outStart),
			outCount:  uint16(len(pids)),
			isFinal:   len(pids) > 0,
		}
	}

	var strBuf []byte
	entries := make([]patternEntry, len(builds))
	for i, b := range builds {
		entries[i] = patternEntry{
			strOffset:    uint32(len(strBuf)),
			strLen:       uint32(len(b.source)),
			dataOffset:   dataOffsets[i],
			wildcardOnly: b.isWild,
		}
		strBuf = append(strBuf, b.source...)
	}

	out := make([]byte, 0, patternHeaderSize+len(flat)*acNodeSize+len(edges)*acEdgeSize+len(outputs)*4+len(entries)*patternEntrySize+len(strBuf))

	hdr := make([]byte, patternHeaderSize)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(flat)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(edges)))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(outputs)))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(len(entries)))
	hdr[16] = byte(mode)
	out = append(out, hdr...)

	for _, n := range flat {
		out = append(out, encodeACNode(n)...)
	}
	for _, e := range edges {
		out = append(out, encodeACEdge(e)...)
	}
	for _, pid := range outputs {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], pid)
		out = append(out, b[:]...)
	}
	for _, e := range entries {
		out = append(out, encodePatternEntry(e)...)
	}
	out = append(out, strBuf...)

	return out, nil
}

// --------------------------------------------------------------------
// Read side: a PatternIndex is a non-owning view over a pattern section,
// restored by the structural mapping above with no parse step.

type PatternIndex struct {
	data []byte
	mode MatchMode

	nodeCount   int
	edgeCount   int
	outputCount int
	patternCnt  int

	nodesOff   int
	edgesOff   int
	outputsOff int
	entriesOff int
	stringsOff int
}

func newPatternIndex(section []byte) (*PatternIndex, error) {
	if len(section) < patternHeaderSize {
		return nil, newError(StatusInvalidData, "pattern section too small")
	}
	p := &PatternIndex{data: section}
	p.nodeCount = int(binary.BigEndian.Uint32(section[0:4]))
	p.edgeCount = int(binary.BigEndian.Uint32(section[4:8]))
	p.outputCount = int(binary.BigEndian.Uint32(section[8:12]))
	p.patternCnt = int(binary.BigEndian.Uint32(section[12:16]))
	p.mode = MatchMode(section[16])

	off := patternHeaderSize
	p.nodesOff = off
	off += p.nodeCount * acNodeSize
	p.edgesOff = off
	off += p.edgeCount * acEdgeSize
	p.outputsOff = off
	off += p.outputCount * 4
	p.entriesOff = off
	off += p.patternCnt * patternEntrySize
	p.stringsOff = off

	if off > len(section) {
		return nil, newError(StatusInvalidData, "pattern section truncated")
	}
	return p, nil
}

func (p *PatternIndex) PatternCount() int { return p.patternCnt }

func (p *PatternIndex) node(idx uint32) acNode {
	start := p.nodesOff + int(idx)*acNodeSize
	return decodeACNode(p.data[start : start+acNodeSize])
}

func (p *PatternIndex) edge(idx uint32) acEdge {
	start := p.edgesOff + int(idx)*acEdgeSize
	return decodeACEdge(p.data[start : start+acEdgeSize])
}

func (p *PatternIndex) outputAt(idx uint32) uint32 {
	start := p.outputsOff + int(idx)*4
	return binary.BigEndian.Uint32(p.data[start : start+4])
}

func (p *PatternIndex) entry(id uint32) patternEntry {
	start := p.entriesOff + int(id)*patternEntrySize
	return decodePatternEntry(p.data[start : start+patternEntrySize])
}

// DataOffsetByID returns id's payload offset into the data section.
func (p *PatternIndex) DataOffsetByID(id uint32) (uint32, error) {
	if int(id) >= p.patternCnt {
		return 0, newError(StatusInvalidParam, "pattern id %d out of range", id)
	}
	return p.entry(id).dataOffset, nil
}

// PatternStringByID returns the original pattern text for id.
func (p *PatternIndex) PatternStringByID(id uint32) (string, error) {
	if int(id) >= p.patternCnt {
		return "", newError(StatusInvalidParam, "pattern id %d out of range", id)
	}
	e := p.entry(id)
	start := p.stringsOff + int(e.strOffset)
	end := start + int(e.strLen)
	if end > len(p.data) {
		return "", ErrOutOfBounds
	}
	return string(p.data[start:end]), nil
}

// child finds the edge target for byte c from node idx, following failure
// links when no direct edge exists (classic Aho-Corasick goto).
func (p *PatternIndex) child(idx uint32, c byte) uint32 {
	for {
		n := p.node(idx)
		lo, hi := int(n.edgeStart), int(n.edgeStart)+int(n.edgeCount)
		i := sort.Search(hi-lo, func(i int) bool {
			return p.edge(uint32(lo+i)).char >= c
		})
		if i < hi-lo {
			e := p.edge(uint32(lo + i))
			if e.char == c {
				return e.target
			}
		}
		if idx == 0 {
			return 0
		}
		idx = n.fail
	}
}

// candidates runs the keyword automaton over text and returns the set of
// pattern IDs with at least one meta-word occurring somewhere in text, plus
// every wildcard-only pattern (those have no meta-word and must always be
// checked). The result is a superset of the true matches: every pattern
// not returned is guaranteed not to match, because a pattern that matches
// must contain each of its literal segments verbatim in text. Callers must
// still verify each candidate against the full glob, since one matching
// meta-word doesn't mean every segment of a multi-segment pattern matched.
func (p *PatternIndex) candidates(text string) []uint32 {
	if p.mode == CaseInsensitive {
		text = strings.ToLower(text)
	}

	seen := make(map[uint32]struct{})
	node := uint32(0)
	for i := 0; i < len(text); i++ {
		node = p.child(node, text[i])
		n := p.node(node)
		for j := uint32(0); j < uint32(n.outCount); j++ {
			seen[p.outputAt(n.outStart+j)] = struct{}{}
		}
	}

	for id := uint32(0); id < uint32(p.patternCnt); id++ {
		if p.entry(id).wildcardOnly {
			seen[id] = struct{}{}
		}
	}

	out := make([]uint32, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
