package tileserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

type stubStorage struct {
	handles map[tilekey.Address]storage.Handle
}

func (s *stubStorage) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	if h, ok := s.handles[tile]; ok {
		return h, nil
	}
	return storage.NullHandle, nil
}
func (s *stubStorage) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	return nil, false, nil
}
func (s *stubStorage) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	return true, nil
}
func (s *stubStorage) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	return true, nil
}

func TestHandlerServesExistingTile(t *testing.T) {
	tile := tilekey.Address{Style: "osm", Z: 4, X: 8, Y: 8, Format: tilekey.FormatPNG, Command: tilekey.CommandRender}
	root := &stubStorage{handles: map[tilekey.Address]storage.Handle{
		tile: storage.NewHandle(time.Unix(784111777, 0), []byte("pngdata"), false),
	}}

	h := New(Config{Root: root})
	req := httptest.NewRequest(http.MethodGet, "/osm/4/8/8.png", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "pngdata" {
		t.Fatalf("body = %q, want pngdata", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q, want image/png", ct)
	}
}

func TestHandlerMissingTileIs404(t *testing.T) {
	h := New(Config{Root: &stubStorage{handles: map[tilekey.Address]storage.Handle{}}})
	req := httptest.NewRequest(http.MethodGet, "/osm/4/8/8.png", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlerExpiredSetsHeader(t *testing.T) {
	tile := tilekey.Address{Style: "osm", Z: 4, X: 8, Y: 8, Format: tilekey.FormatPNG, Command: tilekey.CommandRender}
	root := &stubStorage{handles: map[tilekey.Address]storage.Handle{
		tile: storage.NewHandle(time.Now(), []byte("pngdata"), true),
	}}

	h := New(Config{Root: root})
	req := httptest.NewRequest(http.MethodGet, "/osm/4/8/8.png", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Tile-Expired") != "true" {
		t.Fatal("expected X-Tile-Expired header for expired tile")
	}
}

func TestHandlerMalformedPathIs404(t *testing.T) {
	h := New(Config{Root: &stubStorage{}})
	for _, p := range []string{"/osm/abc/8/8.png", "/osm/4/8/8", "/osm/4/8/8.bogus", "//4/8/8.png"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("path %q: status = %d, want 404", p, rec.Code)
		}
	}
}

func TestParsePathRoundTrip(t *testing.T) {
	tile := tilekey.Address{Style: "terrain", Z: 12, X: 2048, Y: 1024, Format: tilekey.FormatJPEG}
	p := Path(tile)
	got, ok := parsePath(p)
	if !ok {
		t.Fatalf("parsePath(%q) failed", p)
	}
	if got.Style != tile.Style || got.Z != tile.Z || got.X != tile.X || got.Y != tile.Y || got.Format != tile.Format {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, tile)
	}
}
