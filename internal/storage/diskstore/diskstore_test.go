package diskstore

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/tilestore/internal/metatile"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

func buildMetatile(t *testing.T, format tilekey.Format, tiles map[int][]byte) []byte {
	t.Helper()
	c := metatile.NewContainer(format)
	for idx, data := range tiles {
		if err := c.Set(format, idx, data); err != nil {
			t.Fatalf("Set(%d): %v", idx, err)
		}
	}
	return c.Encode()
}

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	tile := tilekey.Address{Style: "default", Z: 4, X: 8, Y: 8, Format: tilekey.FormatPNG}
	buf := buildMetatile(t, tilekey.FormatPNG, map[int][]byte{0: []byte("tile-0-0")})

	ok, err := s.PutMeta(ctx, tile, buf)
	if err != nil || !ok {
		t.Fatalf("PutMeta: ok=%v err=%v", ok, err)
	}

	h, err := s.Get(ctx, tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !h.Exists() {
		t.Fatal("expected handle to exist")
	}
	data, ok := h.Data()
	if !ok || string(data) != "tile-0-0" {
		t.Fatalf("Data() = %q, ok=%v", data, ok)
	}
	if h.Expired() {
		t.Fatal("freshly written tile should not be expired")
	}
}

func TestDiskStoreGetMissingReturnsNullHandle(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	tile := tilekey.Address{Style: "default", Z: 4, X: 0, Y: 0, Format: tilekey.FormatPNG}

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Exists() {
		t.Fatal("expected null handle for missing tile")
	}
}

func TestDiskStorePutMetaRejectsNonMetatileBoundary(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	tile := tilekey.Address{Style: "default", Z: 4, X: 1, Y: 0, Format: tilekey.FormatPNG}

	ok, err := s.PutMeta(context.Background(), tile, []byte("x"))
	if err != nil {
		t.Fatalf("PutMeta: %v", err)
	}
	if ok {
		t.Fatal("expected PutMeta to reject a non-metatile-aligned address")
	}
}

func TestDiskStoreExpireSetsEpochMtime(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()
	tile := tilekey.Address{Style: "default", Z: 2, X: 0, Y: 0, Format: tilekey.FormatPNG}
	buf := buildMetatile(t, tilekey.FormatPNG, map[int][]byte{0: []byte("x")})

	if ok, _ := s.PutMeta(ctx, tile, buf); !ok {
		t.Fatal("PutMeta failed")
	}
	if ok, _ := s.Expire(ctx, tile); !ok {
		t.Fatal("Expire failed")
	}

	h, err := s.Get(ctx, tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !h.Expired() {
		t.Fatal("expected handle to be expired after Expire")
	}

	if _, ok, _ := s.GetMeta(ctx, tile); ok {
		t.Fatal("GetMeta should report failure for an expired metatile")
	}
}

func TestDiskStoreAllowsRepeatedGetWithoutRelease(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()
	tile := tilekey.Address{Style: "default", Z: 2, X: 0, Y: 0, Format: tilekey.FormatPNG}
	buf := buildMetatile(t, tilekey.FormatPNG, map[int][]byte{0: []byte("x")})
	if ok, _ := s.PutMeta(ctx, tile, buf); !ok {
		t.Fatal("PutMeta failed")
	}

	first, err := s.Get(ctx, tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !first.Exists() {
		t.Fatal("expected first handle to exist")
	}

	// A second Get on the same instance while the first handle is still
	// referenced must succeed: Get allocates a fresh slice per call, so
	// there is no shared buffer for an outstanding-handle lock to guard.
	second, err := s.Get(ctx, tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !second.Exists() {
		t.Fatal("expected second handle to exist")
	}

	data, _ := first.Data()
	if string(data) != "x" {
		t.Fatal("first handle's data should remain valid after the second Get")
	}
}

func TestHashCoordsDistinctForDistinctMetatiles(t *testing.T) {
	h1 := hashCoords(0, 0)
	h2 := hashCoords(8, 0)
	if h1 == h2 {
		t.Fatal("expected distinct hash paths for distinct metatile coordinates")
	}
}
