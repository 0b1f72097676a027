package metatile

import (
	"bytes"
	"testing"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

func TestEncodeDecodeSingleFormatRoundTrip(t *testing.T) {
	c := NewContainer(tilekey.FormatPNG)
	for dy := 0; dy < 8; dy++ {
		for dx := 0; dx < 8; dx++ {
			idx := 8*dy + dx
			if err := c.Set(tilekey.FormatPNG, idx, []byte{byte(dx), byte(dy)}); err != nil {
				t.Fatalf("Set(%d): %v", idx, err)
			}
		}
	}

	encoded := c.Encode()

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(decoded.Sections))
	}

	for dy := 0; dy < 8; dy++ {
		for dx := 0; dx < 8; dx++ {
			idx := 8*dy + dx
			got, ok := decoded.Get(tilekey.FormatPNG, idx)
			if !ok {
				t.Fatalf("tile %d missing after round trip", idx)
			}
			if !bytes.Equal(got, []byte{byte(dx), byte(dy)}) {
				t.Fatalf("tile %d = %v, want [%d %d]", idx, got, dx, dy)
			}
		}
	}
}

func TestEncodeDecodeMultiFormatOrder(t *testing.T) {
	c := &Container{}
	c.Set(tilekey.FormatPNG, 0, []byte("png-data"))
	c.Set(tilekey.FormatJPEG, 0, []byte("jpeg-data"))

	encoded := c.Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(decoded.Sections))
	}
	if decoded.Sections[0].Format != tilekey.FormatPNG {
		t.Fatalf("first section format = %v, want png", decoded.Sections[0].Format)
	}
	if decoded.Sections[1].Format != tilekey.FormatJPEG {
		t.Fatalf("second section format = %v, want jpeg", decoded.Sections[1].Format)
	}

	png, ok := decoded.Get(tilekey.FormatPNG, 0)
	if !ok || string(png) != "png-data" {
		t.Fatalf("png tile = %q, ok=%v", png, ok)
	}
	jpeg, ok := decoded.Get(tilekey.FormatJPEG, 0)
	if !ok || string(jpeg) != "jpeg-data" {
		t.Fatalf("jpeg tile = %q, ok=%v", jpeg, ok)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "XXXX")
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	if _, err := Decode([]byte("META")); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestPartialMetatileSparseDirectory(t *testing.T) {
	c := NewContainer(tilekey.FormatPNG)
	if err := c.Set(tilekey.FormatPNG, 5, []byte("only-one-tile")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	decoded, err := Decode(c.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := decoded.Get(tilekey.FormatPNG, 0); ok {
		t.Fatal("tile 0 should be absent")
	}
	got, ok := decoded.Get(tilekey.FormatPNG, 5)
	if !ok || string(got) != "only-one-tile" {
		t.Fatalf("tile 5 = %q, ok=%v", got, ok)
	}
}

func TestOffsetAndIndexMatchRowMajorOrder(t *testing.T) {
	addr := tilekey.Address{X: 19, Y: 11}
	dx, dy, idx := addr.Offset()
	if dx != 3 || dy != 3 {
		t.Fatalf("offset = (%d, %d), want (3, 3)", dx, dy)
	}
	if idx != 8*dy+dx {
		t.Fatalf("index = %d, want %d", idx, 8*dy+dx)
	}
}
