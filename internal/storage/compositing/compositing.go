// Package compositing implements the compositing storage: it
// synthesizes tiles by alpha-blending an "over" layer onto an "under"
// layer, each fetched from its own child storage, using the imagecodec
// collaborator to decode/merge/encode. It is grounded on the original
// compositing_storage and on the teacher's own
// internal/composite/compositor.go for the blend math wired through
// imagecodec.Merge.
package compositing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/imagecodec"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "compositing"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		under, err := factory.CreateChild(cfg, "under")
		if err != nil {
			return nil, fmt.Errorf("compositing: under: %w", err)
		}
		over, err := factory.CreateChild(cfg, "over")
		if err != nil {
			return nil, fmt.Errorf("compositing: over: %w", err)
		}

		opts := cfg.Subtree("config")
		underFormatName, ok := opts.Get("under_format")
		if !ok {
			return nil, fmt.Errorf("compositing: config.under_format is required")
		}
		overFormatName, ok := opts.Get("over_format")
		if !ok {
			return nil, fmt.Errorf("compositing: config.over_format is required")
		}
		underFormat := tilekey.ParseFormat(underFormatName)
		overFormat := tilekey.ParseFormat(overFormatName)
		if underFormat == tilekey.FormatNone {
			return nil, fmt.Errorf("compositing: unrecognized config.under_format %q", underFormatName)
		}
		if overFormat == tilekey.FormatNone {
			return nil, fmt.Errorf("compositing: unrecognized config.over_format %q", overFormatName)
		}

		var producible tilekey.Format
		for _, name := range []string{"jpeg", "gif", "png"} {
			if opts.Has(name) {
				producible = producible.Union(tilekey.ParseFormat(name))
			}
		}
		if producible == tilekey.FormatNone {
			return nil, fmt.Errorf("compositing: at least one of config.jpeg/gif/png is required")
		}

		return New(Config{
			Under:        under,
			Over:         over,
			UnderFormat:  underFormat,
			OverFormat:   overFormat,
			UnderStyle:   opts.GetString("under_style", ""),
			OverStyle:    opts.GetString("over_style", ""),
			Producible:   producible,
			ExpireUnder:  opts.GetBool("expire_under", false),
			ExpireOver:   opts.GetBool("expire_over", false),
			Codec:        imagecodec.New(),
		}), nil
	})
}

// Config collects the compositing storage's construction-time options.
type Config struct {
	Under, Over           storage.Storage
	UnderFormat, OverFormat tilekey.Format
	UnderStyle, OverStyle string
	Producible            tilekey.Format
	ExpireUnder, ExpireOver bool
	Codec                 imagecodec.Codec
}

// Store synthesizes tiles by overlaying Over onto Under. It never
// stores metatiles of its own (GetMeta/PutMeta both refuse, per spec
// §4.6's open question 1: a composited metatile cannot be decomposed
// back into its layers).
type Store struct {
	cfg Config
}

// New returns a compositing Store. cfg.Codec must be non-nil.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) deriveUnder(tile tilekey.Address) tilekey.Address {
	t := tile
	t.Format = s.cfg.UnderFormat
	if s.cfg.UnderStyle != "" {
		t.Style = s.cfg.UnderStyle
	}
	return t
}

func (s *Store) deriveOver(tile tilekey.Address) tilekey.Address {
	t := tile
	t.Format = s.cfg.OverFormat
	if s.cfg.OverStyle != "" {
		t.Style = s.cfg.OverStyle
	}
	return t
}

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	if !s.cfg.Producible.Has(tile.Format) {
		return storage.NullHandle, nil
	}

	underHandle, err := s.cfg.Under.Get(ctx, s.deriveUnder(tile))
	if err != nil {
		return nil, err
	}
	if !underHandle.Exists() {
		return underHandle, nil
	}

	overHandle, err := s.cfg.Over.Get(ctx, s.deriveOver(tile))
	if err != nil {
		return nil, err
	}
	if !overHandle.Exists() {
		return overHandle, nil
	}

	underBytes, ok := underHandle.Data()
	if !ok {
		slog.Error("compositing: under handle has no data", "tile", tile.String())
		return storage.NullHandle, nil
	}
	overBytes, ok := overHandle.Data()
	if !ok {
		slog.Error("compositing: over handle has no data", "tile", tile.String())
		return storage.NullHandle, nil
	}

	underImg, err := s.cfg.Codec.Decode(underBytes)
	if err != nil {
		slog.Error("compositing: decode under failed", "tile", tile.String(), "err", err)
		return storage.NullHandle, nil
	}
	overImg, err := s.cfg.Codec.Decode(overBytes)
	if err != nil {
		slog.Error("compositing: decode over failed", "tile", tile.String(), "err", err)
		return storage.NullHandle, nil
	}

	if underImg.Bounds() != overImg.Bounds() {
		slog.Error("compositing: dimension mismatch", "tile", tile.String(),
			"under", underImg.Bounds(), "over", overImg.Bounds())
		return storage.NullHandle, nil
	}

	merged, err := s.cfg.Codec.Merge(underImg, overImg)
	if err != nil {
		slog.Error("compositing: merge failed", "tile", tile.String(), "err", err)
		return storage.NullHandle, nil
	}

	encoded, err := s.cfg.Codec.Encode(merged, tile.Format)
	if err != nil {
		slog.Error("compositing: encode failed", "tile", tile.String(), "err", err)
		return storage.NullHandle, nil
	}

	lastModified := underHandle.LastModified()
	if overHandle.LastModified().After(lastModified) {
		lastModified = overHandle.LastModified()
	}
	expired := underHandle.Expired() || overHandle.Expired()

	return storage.NewHandle(lastModified, encoded, expired), nil
}

// GetMeta always refuses: spec §4.6 leaves this an open question and
// recommends the conservative answer, since a composited image cannot
// be decomposed back into the two metatiles that produced it.
func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	return nil, false, nil
}

// PutMeta always refuses: the system does not store composited
// metatiles.
func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	return false, nil
}

// Expire forwards to Under and, only if that succeeds (or is not
// configured to run at all), to Over — avoiding a partial expiry when
// the first configured leg fails. Unlike Get, the tile passed to the
// children is not derived: expiry addresses the same metatile key in
// both legs, matching under_style/over_style having no bearing here.
func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	underOK := true
	if s.cfg.ExpireUnder {
		var err error
		underOK, err = s.cfg.Under.Expire(ctx, tile)
		if err != nil {
			return false, err
		}
	}

	overOK := true
	if underOK && s.cfg.ExpireOver {
		var err error
		overOK, err = s.cfg.Over.Expire(ctx, tile)
		if err != nil {
			return false, err
		}
	}

	return underOK && overOK, nil
}
