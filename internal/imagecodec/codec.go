// Package imagecodec is the image codec collaborator the compositing
// storage depends on: decode tile bytes to an image, alpha-composite
// an "over" image onto an "under" image, and encode the result back to
// bytes in a requested format. The blend math is adapted from the
// teacher's own layer compositor, generalized from many named map
// layers down to the two anonymous images a storage overlay works
// with.
package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// Codec decodes, merges and encodes tile images. Compositing storage
// is the only caller in this module, but the interface is deliberately
// narrow so a third-party codec (e.g. for WEBP) can be substituted.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Merge(under, over image.Image) (image.Image, error)
	Encode(img image.Image, format tilekey.Format) ([]byte, error)
}

// Standard is a Codec built entirely on the standard library's image
// packages, supporting PNG, JPEG and GIF.
type Standard struct{}

// New returns a Standard codec.
func New() *Standard { return &Standard{} }

func (Standard) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagecodec: decode: %w", err)
	}
	return img, nil
}

// Merge alpha-composites over on top of under, returning an NRGBA
// image the size of under. The two images must have identical bounds;
// callers (the compositing storage) are responsible for checking this
// up front so they can log and fail the operation instead of panicking
// mid-blend.
func (Standard) Merge(under, over image.Image) (image.Image, error) {
	if under.Bounds() != over.Bounds() {
		return nil, fmt.Errorf("imagecodec: merge: under bounds %v != over bounds %v", under.Bounds(), over.Bounds())
	}

	dst := image.NewNRGBA(under.Bounds())
	bounds := dst.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, under.At(x, y))
		}
	}

	alphaOver(dst, over)
	return dst, nil
}

func (Standard) Encode(img image.Image, format tilekey.Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case tilekey.FormatPNG:
		err = png.Encode(&buf, img)
	case tilekey.FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case tilekey.FormatGIF:
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, fmt.Errorf("imagecodec: unsupported encode format %v", format)
	}
	if err != nil {
		return nil, fmt.Errorf("imagecodec: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// alphaOver composites src onto dst in place using the standard
// "source over" formula on premultiplied alpha, converting both sides
// through NRGBA so the math is independent of the images' native
// color models.
func alphaOver(dst *image.NRGBA, src image.Image) {
	bounds := dst.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			s := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			if s.A == 0 {
				continue
			}

			d := dst.NRGBAAt(x, y)

			sa := float64(s.A) / 255.0
			da := float64(d.A) / 255.0

			outA := sa + da*(1.0-sa)
			if outA == 0 {
				dst.SetNRGBA(x, y, color.NRGBA{})
				continue
			}

			blend := func(srcVal, dstVal uint8) uint8 {
				srcPremult := float64(srcVal) * sa
				dstPremult := float64(dstVal) * da
				outPremult := srcPremult + dstPremult*(1.0-sa)
				return uint8(math.Round(outPremult / outA))
			}

			dst.SetNRGBA(x, y, color.NRGBA{
				R: blend(s.R, d.R),
				G: blend(s.G, d.G),
				B: blend(s.B, d.B),
				A: uint8(math.Round(outA * 255.0)),
			})
		}
	}
}
