package preprocess

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Method names a deterministic downscaling strategy.
type Method string

const (
	// MethodArea averages every source pixel covered by a target cell.
	MethodArea       Method = "area"
	MethodBilinear   Method = "bilinear"
	MethodNearest    Method = "nearest"
	MethodLanczos3   Method = "lanczos3"
	MethodCatmullRom Method = "catmullrom"
)

// ParseMethod maps a configuration value to a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodArea, nil
	case MethodArea, MethodBilinear, MethodNearest, MethodLanczos3, MethodCatmullRom:
		return m, nil
	default:
		return "", fmt.Errorf("unknown resample method %q", s)
	}
}

func (m Method) resample(src image.Image, width, height int) image.Image {
	switch m {
	case MethodBilinear:
		return resize.Resize(uint(width), uint(height), src, resize.Bilinear)
	case MethodNearest:
		return resize.Resize(uint(width), uint(height), src, resize.NearestNeighbor)
	case MethodLanczos3:
		return resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
	case MethodCatmullRom:
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return dst
	default:
		return imaging.Resize(src, width, height, imaging.Box)
	}
}

// flatten composites src over an opaque white background so transparent
// regions read as paper rather than ink.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
