package matchy

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
)

// Database is a sealed Matchy file, mmap'd (or buffer-backed) and ready
// for queries. It owns the mapping and the optional LRU cache; Entry and
// Result values borrow from it and have no independent lifetime.
type Database struct {
	view         *fileView
	walker       *trieWalker
	patternIndex *PatternIndex
	cache        *queryCache
	closed       bool
}

// Open memory-maps path read-only and validates it per opts (nil selects
// DefaultOpenOptions, matching the native call surface's NULL-options
// convention of falling back to safe defaults instead of crashing).
func Open(path string, opts *OpenOptions) (*Database, error) {
	o := opts.norm()
	view, err := openFileView(path, o.Trusted)
	if err != nil {
		return nil, err
	}
	db, err := newDatabase(view, o)
	if err != nil {
		view.close()
		return nil, err
	}
	return db, nil
}

// OpenBuffer parses buf in place without mapping a file. buf must outlive
// the returned Database.
func OpenBuffer(buf []byte, opts *OpenOptions) (*Database, error) {
	o := opts.norm()
	view, err := openBufferView(buf, o.Trusted)
	if err != nil {
		return nil, err
	}
	db, err := newDatabase(view, o)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func newDatabase(view *fileView, o *OpenOptions) (*Database, error) {
	db := &Database{
		view:   view,
		walker: newTrieWalker(view.trieSection, view.v4Only()),
		cache:  newQueryCache(int(o.CacheCapacity)),
	}
	if view.hasPatternIndex() {
		pi, err := newPatternIndex(view.patternSection)
		if err != nil {
			return nil, err
		}
		db.patternIndex = pi
	}
	return db, nil
}

// Close releases the mapping and tears down the cache. The Database must
// not be used afterward.
func (db *Database) Close() error {
	if db.closed {
		return ErrClosed
	}
	db.closed = true
	return db.view.close()
}

// FormatVersion returns the on-disk format version of the opened file.
func (db *Database) FormatVersion() uint32 { return db.view.version }

// HasPatternData reports whether the database carries a pattern section.
func (db *Database) HasPatternData() bool { return db.patternIndex != nil }

// PatternCount returns the number of patterns indexed, or 0 if none.
func (db *Database) PatternCount() int {
	if db.patternIndex == nil {
		return 0
	}
	return db.patternIndex.PatternCount()
}

// PatternStringByID returns the original glob text for a pattern id.
func (db *Database) PatternStringByID(id uint32) (string, error) {
	if db.patternIndex == nil {
		return "", ErrNoPatternData
	}
	return db.patternIndex.PatternStringByID(id)
}

// Query looks up keyText. If the database has a trie and keyText parses
// as an IP address or network, it performs a longest-prefix trie walk;
// otherwise, if the database carries a pattern index, it returns the
// first matching pattern sorted by id.
func (db *Database) Query(keyText string) (Result, error) {
	if db.closed {
		return Result{}, ErrClosed
	}

	if db.view.hasTrie() {
		if key, err := parseKey(keyText); err == nil {
			return db.queryTrie(key)
		}
	}
	if db.patternIndex != nil {
		return db.queryPatternFirst(keyText)
	}
	return Result{Found: false}, nil
}

func (db *Database) queryTrie(key canonKey) (Result, error) {
	cacheKey := string(key.Bytes[:])
	if wr, ok := db.cache.get(cacheKey); ok {
		return resultFromWalk(db, wr), nil
	}
	wr, err := db.walker.walk(key.Bytes, key.IsV6)
	if err != nil {
		return Result{}, err
	}
	db.cache.put(cacheKey, wr)
	return resultFromWalk(db, wr), nil
}

func resultFromWalk(db *Database, wr WalkResult) Result {
	if !wr.Found {
		return Result{Found: false, PrefixLen: wr.PrefixLen}
	}
	return Result{Found: true, PrefixLen: wr.PrefixLen, entry: Entry{db: db, offset: wr.Offset}}
}

func (db *Database) queryPatternFirst(text string) (Result, error) {
	ids, err := db.matchingPatterns(text)
	if err != nil {
		return Result{}, err
	}
	if len(ids) == 0 {
		return Result{Found: false}, nil
	}
	off, err := db.patternIndex.DataOffsetByID(ids[0])
	if err != nil {
		return Result{}, err
	}
	return Result{Found: true, entry: Entry{db: db, offset: off}}, nil
}

// QueryAllPatterns returns every pattern id, sorted ascending, whose glob
// matches text.
func (db *Database) QueryAllPatterns(text string) ([]uint32, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if db.patternIndex == nil {
		return nil, ErrNoPatternData
	}
	return db.matchingPatterns(text)
}

// matchingPatterns narrows to Aho-Corasick candidates in a single pass,
// then verifies each candidate against the text with its own glob matcher,
// rather than testing the text against every stored pattern individually.
func (db *Database) matchingPatterns(text string) ([]uint32, error) {
	candidates := db.patternIndex.candidates(text)
	matched := make([]uint32, 0, len(candidates))
	for _, id := range candidates {
		pstr, err := db.patternIndex.PatternStringByID(id)
		if err != nil {
			return nil, err
		}
		g, err := parseGlob(pstr, db.patternIndex.mode)
		if err != nil {
			return nil, err
		}
		if g.matches(text) {
			matched = append(matched, id)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i] < matched[j] })
	return matched, nil
}

// --------------------------------------------------------------------

// Result is the outcome of a Query.
type Result struct {
	Found     bool
	PrefixLen int
	entry     Entry
}

// Entry extracts the borrowed entry handle, failing with ErrNotFound if
// the query found nothing.
func (r Result) Entry() (Entry, error) {
	if !r.Found {
		return Entry{}, ErrNotFound
	}
	return r.entry, nil
}

// ToJSON serializes the result's full payload.
func (r Result) ToJSON() (string, error) {
	entry, err := r.Entry()
	if err != nil {
		return "", err
	}
	v, err := entry.Value()
	if err != nil {
		return "", err
	}
	return string(valueToJSONBytes(v)), nil
}

// Entry is a non-owning handle onto one decoded value tree, borrowed from
// its Database's data section.
type Entry struct {
	db     *Database
	offset uint32
}

// Value decodes the entry's root value.
func (e Entry) Value() (Value, error) {
	if e.db == nil {
		return nil, ErrNotFound
	}
	dec := &decoder{data: e.db.view.dataSection}
	root, _, err := dec.readValue(int(e.offset))
	return root, err
}

// Navigate walks the entry's value along path, a sequence of map keys or
// decimal array indices.
func (e Entry) Navigate(path []string) (Value, error) {
	root, err := e.Value()
	if err != nil {
		return nil, err
	}
	return navigate(root, path)
}

// Flatten linearizes the entry's value tree in prefix order.
func (e Entry) Flatten() ([]FlatItem, error) {
	root, err := e.Value()
	if err != nil {
		return nil, err
	}
	return flatten(root), nil
}

// --------------------------------------------------------------------
// JSON serialization of a decoded Value tree. Built by hand rather than
// through json.Marshal(map[string]any) because the latter re-sorts map
// keys alphabetically, which would break MapValue's insertion-order
// invariant.

func valueToJSONBytes(v Value) []byte {
	switch x := v.(type) {
	case nil:
		return []byte("null")
	case StringValue:
		b, _ := json.Marshal(string(x))
		return b
	case DoubleValue:
		b, _ := json.Marshal(float64(x))
		return b
	case FloatValue:
		b, _ := json.Marshal(float64(x))
		return b
	case BytesValue:
		b, _ := json.Marshal([]byte(x))
		return b
	case Uint16Value:
		return []byte(strconv.FormatUint(uint64(x), 10))
	case Uint32Value:
		return []byte(strconv.FormatUint(uint64(x), 10))
	case Uint64Value:
		return []byte(strconv.FormatUint(uint64(x), 10))
	case Int32Value:
		return []byte(strconv.FormatInt(int64(x), 10))
	case Uint128Value:
		b, _ := json.Marshal(hex.EncodeToString(x[:]))
		return b
	case BoolValue:
		if x {
			return []byte("true")
		}
		return []byte("false")
	case MapValue:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(e.Key)
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(valueToJSONBytes(e.Value))
		}
		buf.WriteByte('}')
		return buf.Bytes()
	case ArrayValue:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(valueToJSONBytes(e))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	default:
		return []byte("null")
	}
}
