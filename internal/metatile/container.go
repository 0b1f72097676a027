// Package metatile implements the binary container format that every
// storage backend reads and writes: a magic-tagged header, a 64-entry
// directory addressing the individual tiles of an 8x8 metatile, and
// their concatenated payloads. A metatile stored with more than one
// image format is the concatenation of one such block per format, in
// ascending format-bit order.
package metatile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// Magic is the 4-byte tag at the start of every header section.
var Magic = [4]byte{'M', 'E', 'T', 'A'}

// TileCount is the fixed number of tiles in a metatile (8x8).
const TileCount = 64

// headerSize is the size in bytes of one format section's header:
// magic(4) + count(4) + format(4) + reserved(4), followed by 64
// directory entries of 8 bytes each. 16 + 64*8 = 528.
const headerSize = 16 + TileCount*8

// entrySize is the size in bytes of one directory entry: offset(4) +
// len(4).
const entrySize = 8

// entry is one directory slot: the byte range of a single tile's
// payload. The offset counts from the first payload byte of its format
// section, i.e. the byte right after that section's 528-byte header;
// it is not relative to the start of the section or of the file.
type entry struct {
	offset uint32
	length uint32
}

// Section holds one format's worth of decoded tiles, indexed by
// row-major offset within the 8x8 metatile (index = 8*dy + dx).
type Section struct {
	Format tilekey.Format
	Tiles  [TileCount][]byte
}

// Container is a decoded metatile: one Section per stored format, in
// ascending format-bit order.
type Container struct {
	Sections []Section
}

// NewContainer builds an empty container that will hold the given
// formats, each initialized with TileCount nil (absent) tile slots.
func NewContainer(formats tilekey.Format) *Container {
	c := &Container{}
	for _, bit := range formats.Bits() {
		c.Sections = append(c.Sections, Section{Format: bit})
	}
	return c
}

// Set stores the payload for the tile at directory index idx within
// the section for the given format, adding the section if this is its
// first tile.
func (c *Container) Set(format tilekey.Format, idx int, data []byte) error {
	if idx < 0 || idx >= TileCount {
		return fmt.Errorf("metatile: directory index %d out of range", idx)
	}
	for i := range c.Sections {
		if c.Sections[i].Format == format {
			c.Sections[i].Tiles[idx] = data
			return nil
		}
	}
	s := Section{Format: format}
	s.Tiles[idx] = data
	c.Sections = append(c.Sections, s)
	return nil
}

// Get returns the payload for the tile at directory index idx within
// the section for the given format, and whether that section and
// entry exist with data.
func (c *Container) Get(format tilekey.Format, idx int) ([]byte, bool) {
	if idx < 0 || idx >= TileCount {
		return nil, false
	}
	for _, s := range c.Sections {
		if s.Format == format {
			data := s.Tiles[idx]
			return data, data != nil
		}
	}
	return nil, false
}

// Formats returns the bitset of formats present in the container.
func (c *Container) Formats() tilekey.Format {
	var f tilekey.Format
	for _, s := range c.Sections {
		f |= s.Format
	}
	return f
}

// Encode serializes the container to its on-disk byte representation:
// one header+directory+payloads block per section, in ascending
// format-bit order (the order the sections were added in, which
// callers are expected to maintain via NewContainer/Bits()).
func (c *Container) Encode() []byte {
	var buf bytes.Buffer
	for _, s := range c.Sections {
		encodeSection(&buf, s)
	}
	return buf.Bytes()
}

func encodeSection(buf *bytes.Buffer, s Section) {
	entries := make([]entry, TileCount)
	var payload bytes.Buffer
	var offset uint32
	for i, tile := range s.Tiles {
		if tile == nil {
			continue
		}
		entries[i] = entry{offset: offset, length: uint32(len(tile))}
		payload.Write(tile)
		offset += uint32(len(tile))
	}

	header := make([]byte, headerSize)
	copy(header[0:4], Magic[:])
	binary.LittleEndian.PutUint32(header[4:8], TileCount)
	binary.LittleEndian.PutUint32(header[8:12], uint32(s.Format))
	// header[12:16] is reserved, left zero.
	for i, e := range entries {
		off := 16 + i*entrySize
		binary.LittleEndian.PutUint32(header[off:off+4], e.offset)
		binary.LittleEndian.PutUint32(header[off+4:off+8], e.length)
	}

	buf.Write(header)
	buf.Write(payload.Bytes())
}

// Decode parses the on-disk byte representation of a metatile,
// including any concatenated multi-format sections.
func Decode(buf []byte) (*Container, error) {
	c := &Container{}
	for len(buf) > 0 {
		section, rest, err := decodeSection(buf)
		if err != nil {
			return nil, err
		}
		c.Sections = append(c.Sections, section)
		buf = rest
	}
	return c, nil
}

func decodeSection(buf []byte) (Section, []byte, error) {
	if len(buf) < headerSize {
		return Section{}, nil, fmt.Errorf("metatile: truncated header: have %d bytes, need %d", len(buf), headerSize)
	}
	if !bytes.Equal(buf[0:4], Magic[:]) {
		return Section{}, nil, fmt.Errorf("metatile: bad magic %q", buf[0:4])
	}
	count := binary.LittleEndian.Uint32(buf[4:8])
	if count != TileCount {
		return Section{}, nil, fmt.Errorf("metatile: unexpected tile count %d, want %d", count, TileCount)
	}
	format := tilekey.Format(binary.LittleEndian.Uint32(buf[8:12]))

	var entries [TileCount]entry
	maxEnd := uint32(0)
	for i := range entries {
		off := 16 + i*entrySize
		e := entry{
			offset: binary.LittleEndian.Uint32(buf[off : off+4]),
			length: binary.LittleEndian.Uint32(buf[off+4 : off+8]),
		}
		entries[i] = e
		if e.length > 0 {
			if end := e.offset + e.length; end > maxEnd {
				maxEnd = end
			}
		}
	}

	payloadStart := headerSize
	sectionEnd := payloadStart + int(maxEnd)
	if len(buf) < sectionEnd {
		return Section{}, nil, fmt.Errorf("metatile: truncated payload: have %d bytes, need %d", len(buf), sectionEnd)
	}
	payload := buf[payloadStart:sectionEnd]

	s := Section{Format: format}
	for i, e := range entries {
		if e.length == 0 {
			continue
		}
		s.Tiles[i] = payload[e.offset : e.offset+e.length]
	}

	return s, buf[sectionEnd:], nil
}
