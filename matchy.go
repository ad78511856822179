package matchy

// FormatVersion is the current on-disk format version.
const FormatVersion uint32 = 3

var fileMagic = [8]byte{'M', 'A', 'T', 'C', 'H', 'Y', 'D', 'B'}

// Header flag bits.
const (
	flagHasTrie         uint32 = 1 << 0
	flagHasPatternIndex uint32 = 1 << 1
	flagV4Only          uint32 = 1 << 2
)

const headerSize = 16 // magic(8) + version(4BE) + flags(4BE)

// maxPointerChain bounds both trie-walk depth and in-value pointer chains,
// guarding against a corrupt or adversarial file driving either into an
// unbounded loop.
const maxPointerChain = 128

// bitWidth is the trie's fixed key width; v4 keys are mapped into the v6
// subtree at the conventional ::ffff:0:0/96 prefix so one trie serves both
// families.
const bitWidth = 128

// v4MappedPrefixBits is the number of leading bits of the ::ffff:a.b.c.d
// mapping that precede the 32-bit v4 payload.
const v4MappedPrefixBits = 96
