package matchy

import (
	"net/netip"
	"strings"
)

// canonKey is the 128-bit trie key produced from a textual IP address or
// network. IsV6 records whether the original input was a true IPv6 address
// (not expressible in the v4-mapped range), which trieWalker.walk uses to
// reject v6 lookups against a v4-only database.
type canonKey struct {
	Bytes [16]byte
	Bits  int // prefix length within the 128-bit key: 96 + the v4 length for v4 keys (128 for a bare v4 address), the network size for v6 (128 for a bare v6 address)
	IsV6  bool
}

// parseKey accepts four textual shapes: IPv4 dotted quad, IPv6 colon-hex,
// IPv4-mapped-IPv6, or a CIDR network in any of those families. A bare
// address is treated as a /32 or /128 host prefix.
func parseKey(text string) (canonKey, error) {
	text = strings.TrimSpace(text)

	if idx := strings.IndexByte(text, '/'); idx >= 0 {
		prefix, err := netip.ParsePrefix(text)
		if err != nil {
			return canonKey{}, newError(StatusInvalidParam, "invalid network %q: %v", text, err)
		}
		bits := prefix.Bits()
		if prefix.Addr().Is4In6() {
			// A v4-mapped network's length includes the 96 mapping bits.
			if bits < v4MappedPrefixBits {
				return canonKey{}, newError(StatusInvalidParam, "invalid network %q: shorter than the v4-mapped prefix", text)
			}
			bits -= v4MappedPrefixBits
		}
		return fromAddr(prefix.Addr(), bits)
	}

	addr, err := netip.ParseAddr(text)
	if err != nil {
		return canonKey{}, newError(StatusInvalidParam, "invalid address %q: %v", text, err)
	}
	bits := 32
	if addr.Is6() && !addr.Is4In6() {
		bits = 128
	}
	return fromAddr(addr, bits)
}

func fromAddr(addr netip.Addr, bits int) (canonKey, error) {
	var key canonKey

	switch {
	case addr.Is4():
		a4 := addr.As4()
		copy(key.Bytes[12:], a4[:])
		key.Bytes[10], key.Bytes[11] = 0xff, 0xff
		key.Bits = v4MappedPrefixBits + bits
		key.IsV6 = false
	case addr.Is4In6():
		a4 := addr.As4()
		copy(key.Bytes[12:], a4[:])
		key.Bytes[10], key.Bytes[11] = 0xff, 0xff
		key.Bits = v4MappedPrefixBits + bits
		key.IsV6 = false
	default:
		a16 := addr.As16()
		key.Bytes = a16
		key.Bits = bits
		key.IsV6 = true
	}
	return key, nil
}

// v4Bits returns the key's bit-string measured from the start of the
// 32-bit v4 payload (bit 0 = MSB of the first octet), for use against a
// v4-only database's 32-bit-wide trie.
func (k canonKey) v4Bits() int {
	if k.Bits <= v4MappedPrefixBits {
		return 0
	}
	return k.Bits - v4MappedPrefixBits
}
