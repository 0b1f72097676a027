// Package tileserver translates HTTP requests into storage.Storage
// calls against a constructed storage graph. It is grounded on the
// teacher's internal/server.MBTilesHandler: a path parser plus a thin
// HandlerFunc, logging failures with the package-level slog pattern the
// rest of this module uses.
package tileserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

var contentTypes = map[tilekey.Format]string{
	tilekey.FormatPNG:  "image/png",
	tilekey.FormatJPEG: "image/jpeg",
	tilekey.FormatGIF:  "image/gif",
	tilekey.FormatJSON: "application/json",
}

// Handler serves GET /{style}/{z}/{x}/{y}.{fmt} against a root storage.
type Handler struct {
	root         storage.Storage
	cacheControl string
	logger       *slog.Logger
}

// Config configures a Handler.
type Config struct {
	Root         storage.Storage
	CacheControl string
	Logger       *slog.Logger
}

// New returns a Handler serving tiles out of cfg.Root.
func New(cfg Config) *Handler {
	return &Handler{root: cfg.Root, cacheControl: cfg.CacheControl, logger: cfg.Logger}
}

func (h *Handler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tile, ok := parsePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	handle, err := h.root.Get(r.Context(), tile)
	if err != nil {
		h.log().Error("tileserver: storage error", "tile", tile.String(), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !handle.Exists() {
		http.NotFound(w, r)
		return
	}

	data, ok := handle.Data()
	if !ok {
		h.log().Error("tileserver: handle reports exists but has no data", "tile", tile.String())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.cacheControl != "" {
		w.Header().Set("Cache-Control", h.cacheControl)
	}
	if ct, ok := contentTypes[tile.Format]; ok {
		w.Header().Set("Content-Type", ct)
	}
	if handle.Expired() {
		w.Header().Set("X-Tile-Expired", "true")
	}
	if !handle.LastModified().IsZero() {
		w.Header().Set("Last-Modified", handle.LastModified().UTC().Format(http.TimeFormat))
	}

	if _, err := w.Write(data); err != nil {
		h.log().Error("tileserver: write response failed", "tile", tile.String(), "err", err)
	}
}

// parsePath parses a request path of the form "/{style}/{z}/{x}/{y}.{fmt}".
func parsePath(requestPath string) (tilekey.Address, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 4 {
		return tilekey.Address{}, false
	}

	style, zStr, xStr, yfmt := parts[0], parts[1], parts[2], parts[3]
	if style == "" {
		return tilekey.Address{}, false
	}

	z, err := strconv.Atoi(zStr)
	if err != nil || z < 0 {
		return tilekey.Address{}, false
	}
	x, err := strconv.Atoi(xStr)
	if err != nil {
		return tilekey.Address{}, false
	}

	ext := path.Ext(yfmt)
	if ext == "" {
		return tilekey.Address{}, false
	}
	yStr := strings.TrimSuffix(yfmt, ext)
	y, err := strconv.Atoi(yStr)
	if err != nil {
		return tilekey.Address{}, false
	}

	format := tilekey.FormatFromExtension(strings.TrimPrefix(ext, "."))
	if format == tilekey.FormatNone {
		return tilekey.Address{}, false
	}

	return tilekey.Address{
		Command: tilekey.CommandRender,
		X:       int32(x),
		Y:       int32(y),
		Z:       int32(z),
		Style:   style,
		Format:  format,
	}, true
}

// Path renders the canonical request path for tile, the inverse of
// parsePath, useful for operator tooling and tests.
func Path(tile tilekey.Address) string {
	ext := "bin"
	for e, f := range map[string]tilekey.Format{"png": tilekey.FormatPNG, "jpg": tilekey.FormatJPEG, "gif": tilekey.FormatGIF, "json": tilekey.FormatJSON} {
		if f == tile.Format {
			ext = e
		}
	}
	return fmt.Sprintf("/%s/%d/%d/%d.%s", tile.Style, tile.Z, tile.X, tile.Y, ext)
}
