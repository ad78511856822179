/*
Package matchy is a read-optimized lookup database that unifies two query
styles behind one on-disk format and one query engine:

  - Prefix lookup: given a key (canonically an IP address), return the
    longest-prefix-matching record and its structured payload. Wire-compatible
    with the MaxMind DB convention: a binary trie over bit-strings plus a
    typed data section.
  - Glob pattern lookup: given an arbitrary input string, return every stored
    glob pattern (`*`, `?`, `[...]`, `[!...]`, `[a-z]`) that matches it, using
    an Aho-Corasick meta-word index with per-pattern confirmation.

A database is built once by a Builder, sealed to a file, then opened
read-only any number of times over a memory-mapped buffer.

Data Structure Documentation

File

A sealed database is a single file with six sections, written in order.

    File layout:
    +--------+----------+------+------+---------+--------+
    | header | metadata | trie | data | pattern | footer |
    +--------+----------+------+------+---------+--------+

    Header (16 bytes):
    +------------------+-----------------+---------------+
    | magic (8 bytes)  | version (4 BE)  | flags (4 BE)  |
    +------------------+-----------------+---------------+

    Footer:
    +-------------------------------------------+------------------+-----------------+
    | 4 section offset/length pairs (uint32 BE)  | CRC32 (4 bytes)  | magic (8 bytes) |
    +-------------------------------------------+------------------+-----------------+

Trie

The trie section is a flat array of nodes; each node holds two 32-bit
records (left, right), tagged to distinguish a child node index, an empty
slot, or a data-section offset.

    Node:
    +-------------------+-------------------+
    | left record (4B)  | right record (4B) |
    +-------------------+-------------------+

Data

The data section is a concatenation of tagged typed values (see value.go)
addressed by byte offset from the section's own base; values are
deduplicated at build time so identical payloads share one offset.

Pattern

The (optional) pattern section holds the sorted pattern list, the
meta-word-to-pattern reverse index, and a flat Aho-Corasick transition table,
so that opening a database restores the automaton by structural mapping
rather than by recompiling it (see pattern.go).
*/
package matchy
