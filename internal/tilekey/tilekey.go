// Package tilekey defines the addressing scheme shared by every storage
// backend: the tile coordinate triple, the format bitset, and the rule
// for reducing a tile address to its covering metatile.
package tilekey

import "fmt"

// Command identifies what a caller wants done with a tile address.
type Command int

const (
	CommandRender Command = iota
	CommandDirty
	CommandStatus
)

func (c Command) String() string {
	switch c {
	case CommandRender:
		return "render"
	case CommandDirty:
		return "dirty"
	case CommandStatus:
		return "status"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Format is a bitset over the image encodings a tile or a backend can
// produce. A tile carries exactly one bit; a backend's capability set
// may carry several.
type Format uint32

const (
	FormatNone Format = 0
	FormatPNG  Format = 1 << iota
	FormatJPEG
	FormatGIF
	FormatJSON
	// FormatWEBP is reserved for a future codec. No Codec implementation
	// in this module produces or consumes it yet; backends must treat
	// it like any other bit for storage/addressing purposes.
	FormatWEBP
)

var formatNames = map[Format]string{
	FormatPNG:  "png",
	FormatJPEG: "jpeg",
	FormatGIF:  "gif",
	FormatJSON: "json",
	FormatWEBP: "webp",
}

// Extensions maps file extensions to single-bit formats, for HTTP routing.
var extensions = map[string]Format{
	"png":  FormatPNG,
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
	"gif":  FormatGIF,
	"json": FormatJSON,
	"webp": FormatWEBP,
}

// ParseFormat returns the bit for a named format, or FormatNone if the
// name is not recognized.
func ParseFormat(name string) Format {
	for f, n := range formatNames {
		if n == name {
			return f
		}
	}
	return FormatNone
}

// FormatFromExtension returns the bit for a file extension (without the
// leading dot), or FormatNone if unrecognized.
func FormatFromExtension(ext string) Format {
	return extensions[ext]
}

func (f Format) String() string {
	if f == FormatNone {
		return "none"
	}
	s := ""
	for _, bit := range []Format{FormatPNG, FormatJPEG, FormatGIF, FormatJSON, FormatWEBP} {
		if f.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += formatNames[bit]
		}
	}
	return s
}

// Has reports whether all bits in other are set in f.
func (f Format) Has(other Format) bool {
	return f&other == other
}

// Union returns the bitwise union of f and other.
func (f Format) Union(other Format) Format {
	return f | other
}

// Bits returns the individual single-bit formats set in f, in ascending
// numeric order. Used by the metatile container to order per-format
// sections deterministically.
func (f Format) Bits() []Format {
	var out []Format
	for bit := Format(1); bit != 0; bit <<= 1 {
		if f&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

// Address identifies a single tile: its coordinate, style, format and
// the command the caller wants performed. Equality is field-wise.
type Address struct {
	Command  Command
	X        int32
	Y        int32
	Z        int32
	Style    string
	Format   Format
	ID       uint32
	Priority int32
}

// MetaOrigin reduces a tile's (x, y) to the origin of its covering
// metatile: the low 3 bits of each coordinate are cleared, since
// metatiles are 8x8-tile aligned.
func (a Address) MetaOrigin() (x, y int32) {
	return a.X &^ 7, a.Y &^ 7
}

// IsMetaAligned reports whether the address already sits at a metatile
// origin, i.e. (x mod 8, y mod 8) == (0, 0).
func (a Address) IsMetaAligned() bool {
	x, y := a.MetaOrigin()
	return x == a.X && y == a.Y
}

// MetaTile returns the address of the metatile covering a, i.e. a with
// its coordinate snapped to the metatile origin.
func (a Address) MetaTile() Address {
	x, y := a.MetaOrigin()
	meta := a
	meta.X, meta.Y = x, y
	return meta
}

// Offset returns the tile's position within its 8x8 metatile, and the
// row-major directory index (8*dy + dx) used by the metatile container.
func (a Address) Offset() (dx, dy int, index int) {
	ox, oy := a.MetaOrigin()
	dx = int(a.X - ox)
	dy = int(a.Y - oy)
	return dx, dy, 8*dy + dx
}

// WithOffset returns a copy of the metatile address a (assumed already
// metatile-aligned) for the tile at offset (dx, dy) within it.
func (a Address) WithOffset(dx, dy int) Address {
	t := a
	t.X += int32(dx)
	t.Y += int32(dy)
	return t
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%d/%d/%d/%s.%s", a.Command, a.Z, a.X, a.Y, a.Style, a.Format)
}
