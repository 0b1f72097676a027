package nullstore

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

func TestGetIsAlwaysAbsent(t *testing.T) {
	s := New()
	tile := tilekey.Address{Style: "osm", Z: 4, X: 8, Y: 8, Format: tilekey.FormatPNG}

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get returned an error: %v", err)
	}
	if h != storage.NullHandle {
		t.Fatal("null backend must always return the shared NullHandle")
	}
	if h.Exists() {
		t.Fatal("null backend tile must never exist")
	}
}

func TestGetMetaIsAlwaysFalse(t *testing.T) {
	s := New()
	tile := tilekey.Address{Style: "osm", Z: 4, X: 8, Y: 8}

	buf, ok, err := s.GetMeta(context.Background(), tile)
	if err != nil {
		t.Fatalf("GetMeta returned an error: %v", err)
	}
	if ok || buf != nil {
		t.Fatal("null backend has no metatiles to return")
	}
}

func TestPutMetaAndExpireSucceedVacuously(t *testing.T) {
	s := New()
	tile := tilekey.Address{Style: "osm", Z: 4, X: 8, Y: 8}

	ok, err := s.PutMeta(context.Background(), tile, []byte("anything"))
	if err != nil || !ok {
		t.Fatalf("PutMeta should succeed vacuously, got ok=%v err=%v", ok, err)
	}

	ok, err = s.Expire(context.Background(), tile)
	if err != nil || !ok {
		t.Fatalf("Expire should succeed vacuously, got ok=%v err=%v", ok, err)
	}

	// A write followed by a read must still report absence: nothing
	// was actually persisted.
	h, _ := s.Get(context.Background(), tile)
	if h.Exists() {
		t.Fatal("PutMeta must not make the tile exist")
	}
}
