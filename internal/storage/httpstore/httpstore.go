// Package httpstore implements the read-only "HTTP remote" leaf
// backend named in spec §1: each tile is fetched over HTTP and its
// Last-Modified header interpreted with internal/httpdate. It is
// grounded on the gisquick-server mapcache reference file's
// http.Client-based fetch idiom, adapted from fetching rendered map
// layers to fetching individual metatiles.
package httpstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/httpdate"
	"github.com/MeKo-Tech/tilestore/internal/metatile"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "http"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		base := cfg.GetString("base_url", "")
		if base == "" {
			return nil, fmt.Errorf("httpstore: config key %q is required", "base_url")
		}
		timeout := 10 * time.Second
		if seconds := cfg.GetInt("timeout", 0); seconds > 0 {
			timeout = time.Duration(seconds) * time.Second
		}
		return New(base, timeout), nil
	})
}

// Store is a read-only mirror of a remote tile store, analogous to how
// compositing_storage refuses writes (spec §4.6, §4.12).
type Store struct {
	baseURL string
	client  *http.Client
}

// New returns a Store fetching metatiles from baseURL.
func New(baseURL string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (s *Store) metaURL(tile tilekey.Address) string {
	x, y := tile.MetaOrigin()
	return fmt.Sprintf("%s/%s/%d/%d/%d.meta", s.baseURL, tile.Style, tile.Z, x, y)
}

// fetchMeta issues the GET and returns the body bytes plus the parsed
// Last-Modified timestamp (falling back to now, logged at debug, per
// spec §4.12). ok is false for a non-200 response or transport error.
func (s *Store) fetchMeta(ctx context.Context, tile tilekey.Address) ([]byte, time.Time, bool) {
	url := s.metaURL(tile)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Error("httpstore: build request failed", "url", url, "err", err)
		return nil, time.Time{}, false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("httpstore: request failed", "url", url, "err", err)
		return nil, time.Time{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode != http.StatusNotFound {
			slog.Error("httpstore: unexpected status", "url", url, "status", resp.StatusCode)
		}
		return nil, time.Time{}, false
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("httpstore: read body failed", "url", url, "err", err)
		return nil, time.Time{}, false
	}

	lastModified := time.Now()
	if header := resp.Header.Get("Last-Modified"); header != "" {
		if parsed, ok := httpdate.Parse(header); ok {
			lastModified = parsed
		} else {
			slog.Debug("httpstore: unparseable Last-Modified, falling back to now", "url", url, "value", header)
		}
	}

	return data, lastModified, true
}

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	data, lastModified, ok := s.fetchMeta(ctx, tile)
	if !ok {
		return storage.NullHandle, nil
	}

	container, err := metatile.Decode(data)
	if err != nil {
		slog.Error("httpstore: corrupt metatile", "tile", tile.String(), "err", err)
		return storage.NullHandle, nil
	}
	_, _, idx := tile.Offset()
	payload, ok := container.Get(tile.Format, idx)
	if !ok {
		return storage.NullHandle, nil
	}

	return storage.NewHandle(lastModified, payload, false), nil
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	data, _, ok := s.fetchMeta(ctx, tile)
	return data, ok, nil
}

// PutMeta always refuses: the remote backend is read-only.
func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	return false, nil
}

// Expire always refuses: the remote backend is read-only.
func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	return false, nil
}
