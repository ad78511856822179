package matchy

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// footerSize is the fixed trailer written after the pattern section: four
// (offset, length) section descriptors, a CRC32 of the header and body,
// and a repeat of the magic tag.
const footerSize = 4*4*2 + 4 + 8

type sectionOffsets struct {
	metadataOff, metadataLen uint32
	trieOff, trieLen         uint32
	dataOff, dataLen         uint32
	patternOff, patternLen   uint32
}

func encodeFooter(s sectionOffsets, crc uint32) []byte {
	buf := make([]byte, footerSize)
	binary.BigEndian.PutUint32(buf[0:4], s.metadataOff)
	binary.BigEndian.PutUint32(buf[4:8], s.metadataLen)
	binary.BigEndian.PutUint32(buf[8:12], s.trieOff)
	binary.BigEndian.PutUint32(buf[12:16], s.trieLen)
	binary.BigEndian.PutUint32(buf[16:20], s.dataOff)
	binary.BigEndian.PutUint32(buf[20:24], s.dataLen)
	binary.BigEndian.PutUint32(buf[24:28], s.patternOff)
	binary.BigEndian.PutUint32(buf[28:32], s.patternLen)
	binary.BigEndian.PutUint32(buf[32:36], crc)
	copy(buf[36:44], fileMagic[:])
	return buf
}

func decodeFooter(raw []byte) (sectionOffsets, uint32) {
	var s sectionOffsets
	s.metadataOff = binary.BigEndian.Uint32(raw[0:4])
	s.metadataLen = binary.BigEndian.Uint32(raw[4:8])
	s.trieOff = binary.BigEndian.Uint32(raw[8:12])
	s.trieLen = binary.BigEndian.Uint32(raw[12:16])
	s.dataOff = binary.BigEndian.Uint32(raw[16:20])
	s.dataLen = binary.BigEndian.Uint32(raw[20:24])
	s.patternOff = binary.BigEndian.Uint32(raw[24:28])
	s.patternLen = binary.BigEndian.Uint32(raw[28:32])
	crc := binary.BigEndian.Uint32(raw[32:36])
	return s, crc
}

// OpenOptions controls how Open/OpenBuffer validate and cache a database.
type OpenOptions struct {
	// CacheCapacity sizes the LRU query cache; 0 disables it.
	// Default: 1000.
	CacheCapacity uint32

	// Trusted skips CRC and structural spot-checks for a faster open.
	// Default: false.
	Trusted bool
}

// DefaultOpenOptions returns the default options, {1000, false}.
func DefaultOpenOptions() *OpenOptions {
	return &OpenOptions{CacheCapacity: 1000}
}

func (o *OpenOptions) norm() *OpenOptions {
	var oo OpenOptions
	if o != nil {
		oo = *o
	} else {
		oo.CacheCapacity = 1000
	}
	return &oo
}

// fileView is a non-owning slice layout over a sealed database's bytes,
// whether backed by an mmap'd file or a caller-supplied buffer: a section
// view for each section, populated with no copying and no value parsing
// at open.
type fileView struct {
	buf   []byte
	mm    mmap.MMap // non-nil only when backed by a mapped file
	file  *os.File  // non-nil only when backed by a mapped file

	version uint32
	flags   uint32

	metadata       []byte
	trieSection    []byte
	dataSection    []byte
	patternSection []byte

	metadataValue Value
}

func (v *fileView) v4Only() bool { return v.flags&flagV4Only != 0 }
func (v *fileView) hasTrie() bool { return v.flags&flagHasTrie != 0 }
func (v *fileView) hasPatternIndex() bool { return v.flags&flagHasPatternIndex != 0 }

// openFileView maps path read-only and parses it.
func openFileView(path string, trusted bool) (*fileView, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(StatusFileOpenError, "%v", err)
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, newError(StatusFileOpenError, "%v", err)
	}

	view, err := parseFileView([]byte(mm), trusted)
	if err != nil {
		mm.Unmap()
		f.Close()
		return nil, err
	}
	view.mm = mm
	view.file = f
	return view, nil
}

// openBufferView parses a caller-owned buffer without mapping anything.
func openBufferView(buf []byte, trusted bool) (*fileView, error) {
	return parseFileView(buf, trusted)
}

func parseFileView(buf []byte, trusted bool) (*fileView, error) {
	if len(buf) < headerSize+footerSize {
		return nil, ErrBadMagic
	}
	if !bytes.Equal(buf[0:8], fileMagic[:]) {
		return nil, ErrBadMagic
	}
	version := binary.BigEndian.Uint32(buf[8:12])
	if version != FormatVersion {
		return nil, ErrBadVersion
	}
	flags := binary.BigEndian.Uint32(buf[12:16])

	footer := buf[len(buf)-footerSize:]
	if !bytes.Equal(footer[footerSize-8:], fileMagic[:]) {
		return nil, ErrBadMagic
	}
	sections, crc := decodeFooter(footer)

	body := buf[headerSize : len(buf)-footerSize]
	if !trusted {
		sum := crc32.NewIEEE()
		sum.Write(buf[:headerSize])
		sum.Write(body)
		if sum.Sum32() != crc {
			return nil, ErrBadCRC
		}
	}

	section := func(off, ln uint32) ([]byte, error) {
		if ln == 0 {
			return nil, nil
		}
		start, end := int(off), int(off)+int(ln)
		if start < 0 || end > len(body) || start > end {
			return nil, ErrOutOfBounds
		}
		return body[start:end], nil
	}

	metadata, err := section(sections.metadataOff, sections.metadataLen)
	if err != nil {
		return nil, err
	}
	trieSec, err := section(sections.trieOff, sections.trieLen)
	if err != nil {
		return nil, err
	}
	dataSec, err := section(sections.dataOff, sections.dataLen)
	if err != nil {
		return nil, err
	}
	patSec, err := section(sections.patternOff, sections.patternLen)
	if err != nil {
		return nil, err
	}

	view := &fileView{
		buf:            buf,
		version:        version,
		flags:          flags,
		metadata:       metadata,
		trieSection:    trieSec,
		dataSection:    dataSec,
		patternSection: patSec,
	}

	if len(metadata) > 0 {
		dec := &decoder{data: metadata}
		val, _, err := dec.readValue(0)
		if err != nil {
			if !trusted {
				return nil, newError(StatusInvalidMetadata, "%v", err)
			}
		} else {
			view.metadataValue = val
		}
	}

	return view, nil
}

func (v *fileView) close() error {
	if v.mm != nil {
		if err := v.mm.Unmap(); err != nil {
			return err
		}
	}
	if v.file != nil {
		return v.file.Close()
	}
	return nil
}
