// Package preprocess turns a freehand drawing surface into the fixed 28×28
// binary tensor the digit classifier was trained on.
package preprocess

import (
	"context"
	"image"
	"image/color"

	"github.com/Brownie44l1/digit-api/internal/logger"
)

const (
	// nearWhite is the 8-bit level at or above which a resized pixel counts as blank paper.
	nearWhite = 240
	// inkThreshold is the mean 8-bit intensity below which a pixel is stroke.
	inkThreshold = 200
)

// DefaultMaxPixels bounds the source area when no limit is configured.
const DefaultMaxPixels = 4096 * 4096

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMethod selects the downscaling strategy.
func WithMethod(m Method) Option {
	return func(n *Normalizer) {
		if m != "" {
			n.method = m
		}
	}
}

// WithMaxPixels bounds the accepted source area.
func WithMaxPixels(limit int) Option {
	return func(n *Normalizer) {
		if limit > 0 {
			n.maxPixels = limit
		}
	}
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}

// Normalizer converts drawings into tensors. It holds no per-call state and
// is safe for concurrent use.
type Normalizer struct {
	method    Method
	maxPixels int
	log       logger.Logger
}

// NewNormalizer builds a Normalizer using area averaging by default.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		method:    MethodArea,
		maxPixels: DefaultMaxPixels,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Method reports the configured downscaling strategy.
func (n *Normalizer) Method() Method { return n.method }

// Normalize runs the full preprocessing chain on img: emptiness check,
// white compositing, downscale, visibility check, then threshold and invert.
func (n *Normalizer) Normalize(ctx context.Context, img image.Image) (Tensor, error) {
	b := img.Bounds()
	if err := checkArea(b.Dx(), b.Dy(), n.maxPixels); err != nil {
		return Tensor{}, err
	}

	if isBlank(img) {
		return Tensor{}, ErrEmptyCanvas
	}

	resized := n.method.resample(flatten(img), Size, Size)
	if !hasInk(resized) {
		return Tensor{}, ErrNoVisibleContent
	}

	t := binarize(resized)
	n.log.Debug(ctx, "normalized canvas",
		logger.Int("width", b.Dx()),
		logger.Int("height", b.Dy()),
		logger.String("method", string(n.method)),
		logger.Int("foreground", t.Foreground()))
	return t, nil
}

// isBlank reports whether every R, G, B and A sample of img is zero, i.e.
// nothing was ever drawn on a cleared canvas. Color bytes under zero alpha
// count, so a transparent white fill is not blank.
func isBlank(img image.Image) bool {
	switch src := img.(type) {
	case *image.NRGBA:
		return zeroRows(src.Pix, src.Stride, src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y), src.Rect.Dx()*4, src.Rect.Dy())
	case *image.RGBA:
		return zeroRows(src.Pix, src.Stride, src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y), src.Rect.Dx()*4, src.Rect.Dy())
	case *image.NRGBA64:
		return zeroRows(src.Pix, src.Stride, src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y), src.Rect.Dx()*8, src.Rect.Dy())
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R|c.G|c.B|c.A != 0 {
				return false
			}
		}
	}
	return true
}

func zeroRows(pix []byte, stride, start, rowLen, rows int) bool {
	for y := 0; y < rows; y++ {
		off := start + y*stride
		for _, v := range pix[off : off+rowLen] {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// hasInk reports whether any pixel has a channel below nearWhite.
func hasInk(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := rgb8(img, x, y)
			if r < nearWhite || g < nearWhite || bl < nearWhite {
				return true
			}
		}
	}
	return false
}

// binarize maps dark pixels to 1.0 and everything else to 0.0, inverting
// dark-ink-on-paper into the white-digit-on-black training convention.
func binarize(img image.Image) Tensor {
	var t Tensor
	b := img.Bounds()
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			r, g, bl := rgb8(img, b.Min.X+x, b.Min.Y+y)
			var level uint8
			if r+g+bl < 3*inkThreshold {
				level = 255
			}
			t.values[y*Size+x] = float32(level) / 255
		}
	}
	return t
}

func rgb8(img image.Image, x, y int) (uint32, uint32, uint32) {
	r, g, b, _ := img.At(x, y).RGBA()
	return r >> 8, g >> 8, b >> 8
}
