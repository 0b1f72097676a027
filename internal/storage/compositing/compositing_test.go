package compositing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// memStore is a minimal in-memory Storage used as a child in these
// tests: keyed by the full tile address so under/over fetches can be
// primed independently.
type memStore struct {
	tiles map[tilekey.Address]storage.Handle
}

func newMemStore() *memStore {
	return &memStore{tiles: make(map[tilekey.Address]storage.Handle)}
}

func (m *memStore) put(tile tilekey.Address, lastModified time.Time, data []byte, expired bool) {
	m.tiles[tile] = storage.NewHandle(lastModified, data, expired)
}

func (m *memStore) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	if h, ok := m.tiles[tile]; ok {
		return h, nil
	}
	return storage.NullHandle, nil
}
func (m *memStore) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	return nil, false, nil
}
func (m *memStore) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	return false, nil
}
func (m *memStore) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	return true, nil
}

// recordingStore wraps a memStore and records whether Expire was called
// and the exact tile address it was called with.
type recordingStore struct {
	*memStore
	expireCalled bool
	expireResult bool
	expireTile   tilekey.Address
}

func (r *recordingStore) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	r.expireCalled = true
	r.expireTile = tile
	return r.expireResult, nil
}

// fakeCodec treats "bytes" as a flattened rectangle image marker:
// decode produces a uniform image of the size encoded in the payload
// header, merge returns a new image of under's bounds filled with one
// fixed colour (real blending is exercised in the imagecodec package's
// own tests), and encode
// serializes bounds back out.
type fakeCodec struct {
	decodeErr error
	mergeErr  error
	encodeErr error
}

func encodeSize(w, h int) []byte {
	return []byte(fmt.Sprintf("%dx%d", w, h))
}

func (f *fakeCodec) Decode(data []byte) (image.Image, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	var w, h int
	if _, err := fmt.Sscanf(string(data), "%dx%d", &w, &h); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	return img, nil
}

func (f *fakeCodec) Merge(under, over image.Image) (image.Image, error) {
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	out := image.NewRGBA(under.Bounds())
	draw := color.RGBA{R: 1, G: 2, B: 3, A: 255}
	for y := out.Bounds().Min.Y; y < out.Bounds().Max.Y; y++ {
		for x := out.Bounds().Min.X; x < out.Bounds().Max.X; x++ {
			out.Set(x, y, draw)
		}
	}
	return out, nil
}

func (f *fakeCodec) Encode(img image.Image, format tilekey.Format) ([]byte, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	b := img.Bounds()
	return encodeSize(b.Dx(), b.Dy()), nil
}

func baseTile() tilekey.Address {
	return tilekey.Address{Style: "osm", Z: 10, X: 512, Y: 512, Format: tilekey.FormatPNG}
}

func newTestStore(under, over storage.Storage) *Store {
	return New(Config{
		Under:       under,
		Over:        over,
		UnderFormat: tilekey.FormatJPEG,
		OverFormat:  tilekey.FormatPNG,
		Producible:  tilekey.FormatPNG,
		Codec:       &fakeCodec{},
	})
}

func TestGetMissingUnderReturnsUnderHandleVerbatim(t *testing.T) {
	under := newMemStore()
	over := newMemStore()
	s := newTestStore(under, over)

	h, err := s.Get(context.Background(), baseTile())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Exists() {
		t.Fatal("expected miss when under is absent")
	}
}

func TestGetMissingOverReturnsOverHandleVerbatim(t *testing.T) {
	under := newMemStore()
	over := newMemStore()
	s := newTestStore(under, over)

	tile := baseTile()
	underTile := s.deriveUnder(tile)
	under.put(underTile, time.Unix(100, 0), encodeSize(256, 256), false)

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Exists() {
		t.Fatal("expected miss when over is absent")
	}
}

func TestGetLastModifiedIsMax(t *testing.T) {
	under := newMemStore()
	over := newMemStore()
	s := newTestStore(under, over)

	tile := baseTile()
	underTile := s.deriveUnder(tile)
	overTile := s.deriveOver(tile)
	under.put(underTile, time.Unix(100, 0), encodeSize(256, 256), false)
	over.put(overTile, time.Unix(200, 0), encodeSize(256, 256), false)

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !h.Exists() {
		t.Fatal("expected a synthesized handle")
	}
	if h.LastModified().Unix() != 200 {
		t.Fatalf("LastModified = %v, want max(100,200)=200", h.LastModified().Unix())
	}
}

func TestGetExpiredIsDisjunction(t *testing.T) {
	under := newMemStore()
	over := newMemStore()
	s := newTestStore(under, over)

	tile := baseTile()
	underTile := s.deriveUnder(tile)
	overTile := s.deriveOver(tile)
	under.put(underTile, time.Unix(100, 0), encodeSize(256, 256), true)
	over.put(overTile, time.Unix(200, 0), encodeSize(256, 256), false)

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !h.Expired() {
		t.Fatal("expected expired = under.expired || over.expired = true")
	}
}

func TestGetDimensionMismatchYieldsNullHandle(t *testing.T) {
	under := newMemStore()
	over := newMemStore()
	s := newTestStore(under, over)

	tile := baseTile()
	underTile := s.deriveUnder(tile)
	overTile := s.deriveOver(tile)
	under.put(underTile, time.Unix(100, 0), encodeSize(256, 256), false)
	over.put(overTile, time.Unix(200, 0), encodeSize(256, 128), false)

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Exists() {
		t.Fatal("expected null handle on dimension mismatch")
	}
}

func TestGetFormatNotProducibleYieldsNullHandle(t *testing.T) {
	under := newMemStore()
	over := newMemStore()
	s := newTestStore(under, over)

	tile := baseTile()
	tile.Format = tilekey.FormatGIF // not in Producible (PNG only)

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Exists() {
		t.Fatal("expected null handle for unproducible format")
	}
}

func TestGetMetaAlwaysRefuses(t *testing.T) {
	s := newTestStore(newMemStore(), newMemStore())
	_, ok, err := s.GetMeta(context.Background(), baseTile())
	if err != nil || ok {
		t.Fatalf("GetMeta should always be (false, nil); got ok=%v err=%v", ok, err)
	}
}

func TestPutMetaAlwaysRefuses(t *testing.T) {
	s := newTestStore(newMemStore(), newMemStore())
	ok, err := s.PutMeta(context.Background(), baseTile(), []byte("x"))
	if err != nil || ok {
		t.Fatalf("PutMeta should always be (false, nil); got ok=%v err=%v", ok, err)
	}
}

func TestExpireGuardsSecondLeg(t *testing.T) {
	under := &recordingStore{memStore: newMemStore(), expireResult: false}
	over := &recordingStore{memStore: newMemStore(), expireResult: true}

	s := New(Config{
		Under:       under,
		Over:        over,
		UnderFormat: tilekey.FormatJPEG,
		OverFormat:  tilekey.FormatPNG,
		Producible:  tilekey.FormatPNG,
		Codec:       &fakeCodec{},
		ExpireUnder: true,
		ExpireOver:  true,
	})

	ok, err := s.Expire(context.Background(), baseTile())
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if ok {
		t.Fatal("expected Expire to fail when under.Expire fails")
	}
	if over.expireCalled {
		t.Fatal("expected over.Expire to be skipped when under.Expire failed")
	}
}

func TestExpireSkipsUnconfiguredLegs(t *testing.T) {
	under := &recordingStore{memStore: newMemStore(), expireResult: true}
	over := &recordingStore{memStore: newMemStore(), expireResult: true}

	s := New(Config{
		Under:       under,
		Over:        over,
		UnderFormat: tilekey.FormatJPEG,
		OverFormat:  tilekey.FormatPNG,
		Producible:  tilekey.FormatPNG,
		Codec:       &fakeCodec{},
		ExpireUnder: false,
		ExpireOver:  false,
	})

	ok, err := s.Expire(context.Background(), baseTile())
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if !ok {
		t.Fatal("expected Expire to succeed vacuously when neither leg is configured")
	}
}

func TestExpirePassesTileUnmodifiedDespiteStyleOverrides(t *testing.T) {
	under := &recordingStore{memStore: newMemStore(), expireResult: true}
	over := &recordingStore{memStore: newMemStore(), expireResult: true}

	s := New(Config{
		Under:       under,
		Over:        over,
		UnderFormat: tilekey.FormatJPEG,
		OverFormat:  tilekey.FormatPNG,
		UnderStyle:  "osm-base",
		OverStyle:   "osm-labels",
		Producible:  tilekey.FormatPNG,
		Codec:       &fakeCodec{},
		ExpireUnder: true,
		ExpireOver:  true,
	})

	tile := baseTile()
	ok, err := s.Expire(context.Background(), tile)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if !ok {
		t.Fatal("expected Expire to succeed")
	}
	if under.expireTile != tile {
		t.Fatalf("under.Expire tile = %v, want unmodified %v", under.expireTile, tile)
	}
	if over.expireTile != tile {
		t.Fatalf("over.Expire tile = %v, want unmodified %v", over.expireTile, tile)
	}
}

func TestGetDecodeFailureYieldsNullHandle(t *testing.T) {
	under := newMemStore()
	over := newMemStore()

	s := New(Config{
		Under:       under,
		Over:        over,
		UnderFormat: tilekey.FormatJPEG,
		OverFormat:  tilekey.FormatPNG,
		Producible:  tilekey.FormatPNG,
		Codec:       &fakeCodec{decodeErr: errors.New("boom")},
	})

	tile := baseTile()
	underTile := s.deriveUnder(tile)
	overTile := s.deriveOver(tile)
	under.put(underTile, time.Unix(100, 0), encodeSize(256, 256), false)
	over.put(overTile, time.Unix(200, 0), encodeSize(256, 256), false)

	h, err := s.Get(context.Background(), tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.Exists() {
		t.Fatal("expected null handle on decode failure")
	}
}
