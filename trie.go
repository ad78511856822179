package matchy

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Record tags for a trie slot. A node stores two records, left and right,
// each a packed 32-bit word.
type recordKind int

const (
	recordEmpty recordKind = iota
	recordNode
	recordData
)

// Record layout, packed into a single fixed 32-bit uint32:
//
//	bit 31:    kind bit — 0 = SearchNode/Empty, 1 = Data
//	bit 30:    (kind bit 0 only) 0 = Empty, 1 = SearchNode
//	bits 0-29: child node index (SearchNode) or data-section offset (Data)
const (
	recordDataFlag = uint32(1) << 31
	recordNodeFlag = uint32(1) << 30
	recordValMask  = recordNodeFlag - 1
)

func packRecord(kind recordKind, value uint32) uint32 {
	switch kind {
	case recordData:
		return recordDataFlag | (value & recordValMask)
	case recordNode:
		return recordNodeFlag | (value & recordValMask)
	default:
		return 0
	}
}

func unpackRecord(raw uint32) (recordKind, uint32) {
	if raw&recordDataFlag != 0 {
		return recordData, raw & recordValMask
	}
	if raw&recordNodeFlag != 0 {
		return recordNode, raw & recordValMask
	}
	return recordEmpty, 0
}

// trieNode is the in-memory representation of one node's two records,
// built by Builder and serialized as 8 bytes (two BE uint32 records).
type trieNode struct {
	left  uint32 // packed record
	right uint32 // packed record
}

const trieRecordSize = 4 // bytes per record
const trieNodeSize = 2 * trieRecordSize

func encodeTrieNode(n trieNode) []byte {
	buf := make([]byte, trieNodeSize)
	binary.BigEndian.PutUint32(buf[0:4], n.left)
	binary.BigEndian.PutUint32(buf[4:8], n.right)
	return buf
}

func decodeTrieNode(raw []byte) trieNode {
	return trieNode{
		left:  binary.BigEndian.Uint32(raw[0:4]),
		right: binary.BigEndian.Uint32(raw[4:8]),
	}
}

// trieWalker walks a trie section in place, with no copying, looking for
// the longest-prefix match of a bit-string key.
type trieWalker struct {
	section []byte // node_count * trieNodeSize bytes
	v4Only  bool
}

func newTrieWalker(section []byte, v4Only bool) *trieWalker {
	return &trieWalker{section: section, v4Only: v4Only}
}

func (t *trieWalker) nodeCount() int { return len(t.section) / trieNodeSize }

func (t *trieWalker) nodeAt(idx uint32) (trieNode, error) {
	off := int(idx) * trieNodeSize
	if off < 0 || off+trieNodeSize > len(t.section) {
		return trieNode{}, newError(StatusInvalidNodeNumber, "node %d out of range", idx)
	}
	return decodeTrieNode(t.section[off : off+trieNodeSize]), nil
}

// WalkResult is the outcome of a trie walk.
type WalkResult struct {
	Found     bool
	PrefixLen int
	Offset    uint32 // data-section offset, valid only if Found
}

// walk performs the longest-prefix walk: the first Data record encountered
// along the key's bit-path wins; an Empty record never falls back to an
// ancestor.
func (t *trieWalker) walk(key [16]byte, isV6 bool) (WalkResult, error) {
	if t.v4Only && isV6 {
		return WalkResult{}, ErrIPv6InIPv4DB
	}
	if t.nodeCount() == 0 {
		return WalkResult{Found: false, PrefixLen: 0}, nil
	}

	start := 0
	width := bitWidth
	if t.v4Only {
		start = v4MappedPrefixBits
		width = bitWidth - v4MappedPrefixBits
	}

	nodeIdx := uint32(0)
	depth := 0
	for i := 0; i < width; i++ {
		bit := start + i
		if depth > maxPointerChain {
			return WalkResult{}, newError(StatusCorruptSearchTree, "trie walk exceeded depth bound")
		}
		depth++

		node, err := t.nodeAt(nodeIdx)
		if err != nil {
			return WalkResult{}, err
		}

		bitVal := (key[bit/8] >> uint(7-bit%8)) & 1
		var rec uint32
		if bitVal == 0 {
			rec = node.left
		} else {
			rec = node.right
		}

		kind, val := unpackRecord(rec)
		switch kind {
		case recordEmpty:
			return WalkResult{Found: false, PrefixLen: i}, nil
		case recordData:
			return WalkResult{Found: true, PrefixLen: i + 1, Offset: val}, nil
		case recordNode:
			nodeIdx = val
		}
	}
	return WalkResult{}, newError(StatusCorruptSearchTree, "trie walk exceeded bit width without resolving")
}

// --------------------------------------------------------------------
// Build-side trie construction (used by Builder).

// trieInsert is one prefix to insert: the first Bits bits of Key (starting
// at StartBit) resolve to Offset in the data section.
type trieInsert struct {
	Key      [16]byte
	StartBit int
	Bits     int
	Offset   uint32
}

type buildEdge struct {
	kind   recordKind
	child  *buildNode
	offset uint32
}

type buildNode struct {
	left, right buildEdge
}

func (n *buildNode) edge(bit byte) *buildEdge {
	if bit == 0 {
		return &n.left
	}
	return &n.right
}

func bitAt(key [16]byte, bit int) byte {
	return (key[bit/8] >> uint(7-bit%8)) & 1
}

// buildTrieNodes sorts entries so that broader (shorter) prefixes are
// inserted before any more specific prefix they contain, inserts each one,
// canonicalizes identical subtrees, and serializes the result into a flat
// node array with the root at index 0.
func buildTrieNodes(entries []trieInsert) []trieNode {
	sorted := make([]trieInsert, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessBitString(sorted[i], sorted[j])
	})

	root := &buildNode{}
	for _, e := range sorted {
		insertPrefix(root, e)
	}

	canon := newCanonicalizer()
	canon.node(root)

	return flattenNodes(root)
}

// lessBitString orders a before b: compare their bit-strings bit by bit; if
// one is a strict prefix of the other, the shorter (broader network) sorts
// first, guaranteeing it is inserted before anything that would need to
// walk through it.
func lessBitString(a, b trieInsert) bool {
	n := a.Bits
	if b.Bits < n {
		n = b.Bits
	}
	for i := 0; i < n; i++ {
		ba := bitAt(a.Key, a.StartBit+i)
		bb := bitAt(b.Key, b.StartBit+i)
		if ba != bb {
			return ba < bb
		}
	}
	return a.Bits < b.Bits
}

func insertPrefix(root *buildNode, e trieInsert) {
	if e.Bits == 0 {
		return
	}
	node := root
	for i := 0; i < e.Bits-1; i++ {
		bit := bitAt(e.Key, e.StartBit+i)
		edge := node.edge(bit)
		switch edge.kind {
		case recordEmpty:
			child := &buildNode{}
			*edge = buildEdge{kind: recordNode, child: child}
			node = child
		case recordNode:
			node = edge.child
		case recordData:
			// A broader prefix already terminates here; expand it into a
			// node whose children both inherit the old offset, then
			// continue descending so the more specific insert can
			// override just its own subtree.
			old := edge.offset
			child := &buildNode{
				left:  buildEdge{kind: recordData, offset: old},
				right: buildEdge{kind: recordData, offset: old},
			}
			*edge = buildEdge{kind: recordNode, child: child}
			node = child
		}
	}
	lastBit := bitAt(e.Key, e.StartBit+e.Bits-1)
	*node.edge(lastBit) = buildEdge{kind: recordData, offset: e.Offset}
}

// canonicalizer merges structurally identical subtrees bottom-up by
// hash-consing, shrinking the node count whenever two subtrees encode
// the same left/right edges.
type canonicalizer struct {
	seen map[string]*buildNode
}

func newCanonicalizer() *canonicalizer {
	return &canonicalizer{seen: make(map[string]*buildNode)}
}

func (c *canonicalizer) node(n *buildNode) string {
	lsig := c.edge(&n.left)
	rsig := c.edge(&n.right)
	sig := lsig + "," + rsig
	return sig
}

func (c *canonicalizer) edge(e *buildEdge) string {
	switch e.kind {
	case recordEmpty:
		return "X"
	case recordData:
		return fmt.Sprintf("D%d", e.offset)
	default: // recordNode
		sig := c.node(e.child)
		if existing, ok := c.seen[sig]; ok {
			e.child = existing
		} else {
			c.seen[sig] = e.child
		}
		return "N(" + sig + ")"
	}
}

// flattenNodes assigns each distinct reachable buildNode a dense index
// (root first) and serializes it to the on-disk trieNode representation.
func flattenNodes(root *buildNode) []trieNode {
	indices := make(map[*buildNode]uint32)
	order := []*buildNode{root}
	indices[root] = 0

	for i := 0; i < len(order); i++ {
		n := order[i]
		for _, e := range [2]*buildEdge{&n.left, &n.right} {
			if e.kind == recordNode {
				if _, ok := indices[e.child]; !ok {
					indices[e.child] = uint32(len(order))
					order = append(order, e.child)
				}
			}
		}
	}

	nodes := make([]trieNode, len(order))
	for i, n := range order {
		nodes[i] = trieNode{
			left:  packEdge(&n.left, indices),
			right: packEdge(&n.right, indices),
		}
	}
	return nodes
}

func packEdge(e *buildEdge, indices map[*buildNode]uint32) uint32 {
	switch e.kind {
	case recordData:
		return packRecord(recordData, e.offset)
	case recordNode:
		return packRecord(recordNode, indices[e.child])
	default:
		return 0
	}
}
