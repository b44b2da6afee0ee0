package preprocess

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
)

const bytesPerPixel = 4

// checkArea rejects non-positive dimensions and areas above maxPixels without
// multiplying first, so huge client-supplied sizes cannot overflow.
func checkArea(width, height, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, width, height)
	}
	if width > maxPixels/height {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, width, height, maxPixels)
	}
	return nil
}

// FromPixels wraps a canvas pixel buffer (non-premultiplied RGBA, as returned
// by getImageData) in an image. The buffer is copied so later writes by the
// caller cannot tear the snapshot. A maxPixels of zero applies DefaultMaxPixels.
func FromPixels(width, height int, pix []byte, maxPixels int) (*image.NRGBA, error) {
	if err := checkArea(width, height, maxPixels); err != nil {
		return nil, err
	}
	if want := width * height * bytesPerPixel; len(pix) != want {
		return nil, fmt.Errorf("%w: expected %d bytes for %dx%d, got %d", ErrInvalidImage, want, width, height, len(pix))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pix)
	return img, nil
}

// Decode reads a PNG or JPEG image. The header is checked against maxPixels
// before any pixel data is decoded.
func Decode(r io.Reader, maxPixels int) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := checkArea(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// DecodeDataURL decodes a base64 data URL such as the one produced by
// canvas.toDataURL("image/png").
func DecodeDataURL(s string, maxPixels int) (image.Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URL", ErrInvalidImage)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data URL must be base64 encoded", ErrInvalidImage)
	}
	if !strings.HasPrefix(meta, "image/") {
		return nil, fmt.Errorf("%w: unsupported media type %q", ErrInvalidImage, strings.TrimSuffix(meta, ";base64"))
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return Decode(bytes.NewReader(data), maxPixels)
}
