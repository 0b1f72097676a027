// Package diskstore implements the local-filesystem leaf backend: one
// metatile container per file, addressed through a hashed directory
// tree so that no single directory ends up with an unworkable number
// of entries. It is grounded on the original disk_storage, including
// its atomic-rename publish discipline.
package diskstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/metatile"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "disk"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		root := cfg.GetString("tile_dir", "")
		if root == "" {
			return nil, fmt.Errorf("diskstore: config key %q is required", "tile_dir")
		}
		return New(root), nil
	})
}

// Store is the local-directory backend. The zero value is not usable;
// construct with New.
type Store struct {
	root string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// handle is the disk backend's Handle implementation. The original C++
// backend kept one reusable scratch buffer per instance and required
// callers to release it before the next Get; since Get here reads a
// fresh slice per call (os.ReadFile), there is no shared buffer to
// protect, so per spec §9 the invariant is dropped along with it.
type handle struct {
	lastModified time.Time
	data         []byte
	expired      bool
}

func newHandle(lastModified time.Time, data []byte, expired bool) *handle {
	return &handle{lastModified: lastModified, data: data, expired: expired}
}

func (h *handle) Exists() bool            { return true }
func (h *handle) LastModified() time.Time { return h.lastModified }
func (h *handle) Data() ([]byte, bool)    { return h.data, true }
func (h *handle) Expired() bool           { return h.expired }

// metaPath derives the on-disk path for the metatile covering tile:
// <root>/<style>/<z>/<h0>/<h1>/<h2>/<h3>/<h4>.meta, where h0..h4 are
// 1-byte hashes folded from the metatile-aligned (X, Y) coordinates.
func (s *Store) metaPath(tile tilekey.Address) string {
	x, y := tile.MetaOrigin()
	h := hashCoords(x, y)
	return filepath.Join(
		s.root, tile.Style, fmt.Sprint(tile.Z),
		fmt.Sprint(h[0]), fmt.Sprint(h[1]), fmt.Sprint(h[2]), fmt.Sprint(h[3]),
		fmt.Sprintf("%d.meta", h[4]),
	)
}

// hashCoords folds a metatile-aligned (x, y) pair into 5 one-byte
// hashes, each packing 4 bits of x in its high nibble and 4 bits of y
// in its low nibble, least-significant pair first. This is the 8x8
// interleave scheme used by the metatile reference implementation:
// since metatiles are 8-tile aligned, the low 3 bits of x and y are
// always zero and contribute nothing, so of the low 20 bits of each
// coordinate that the fold covers, 17 meaningful bits reach the path.
func hashCoords(x, y int32) [5]byte {
	ux, uy := uint32(x), uint32(y)
	var h [5]byte
	for i := 0; i < 5; i++ {
		h[i] = byte((ux&0x0f)<<4 | (uy & 0x0f))
		ux >>= 4
		uy >>= 4
	}
	return h
}

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	path := s.metaPath(tile)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.NullHandle, nil
		}
		slog.Error("diskstore: stat failed", "path", path, "err", err)
		return storage.NullHandle, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		slog.Error("diskstore: read failed", "path", path, "err", err)
		return storage.NullHandle, nil
	}

	container, err := metatile.Decode(buf)
	if err != nil {
		slog.Error("diskstore: corrupt metatile", "path", path, "err", err)
		return storage.NullHandle, nil
	}

	_, _, idx := tile.Offset()
	data, ok := container.Get(tile.Format, idx)
	if !ok {
		return storage.NullHandle, nil
	}

	mtime := info.ModTime()
	expired := mtime.Unix() == 0
	return newHandle(mtime, data, expired), nil
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	path := s.metaPath(tile)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		slog.Error("diskstore: stat failed", "path", path, "err", err)
		return nil, false, nil
	}
	if info.ModTime().Unix() == 0 {
		return nil, false, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		slog.Error("diskstore: read failed", "path", path, "err", err)
		return nil, false, nil
	}
	return buf, true, nil
}

func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	if !tile.IsMetaAligned() {
		slog.Error("diskstore: attempt to save tile at non-metatile boundary", "tile", tile.String())
		return false, nil
	}

	path := s.metaPath(tile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("diskstore: mkdir failed", "path", filepath.Dir(path), "err", err)
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.meta")
	if err != nil {
		slog.Error("diskstore: create temp file failed", "dir", filepath.Dir(path), "err", err)
		return false, nil
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		slog.Error("diskstore: write failed", "path", tmpName, "err", err)
		return false, nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		slog.Error("diskstore: close failed", "path", tmpName, "err", err)
		return false, nil
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		slog.Error("diskstore: rename failed", "from", tmpName, "to", path, "err", err)
		return false, nil
	}
	return true, nil
}

func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	path := s.metaPath(tile)
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("diskstore: stat failed", "path", path, "err", err)
		}
		return false, nil
	}

	epoch := time.Unix(0, 0)
	if err := os.Chtimes(path, epoch, epoch); err != nil {
		slog.Error("diskstore: chtimes failed", "path", path, "err", err)
		return false, nil
	}
	return true, nil
}
