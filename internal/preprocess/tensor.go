package preprocess

import "image"

// Size is the edge length of the classifier input grid.
const Size = 28

// Tensor is a Size×Size single-channel grid in row-major order. Background
// pixels are 0.0 and stroke pixels are 1.0.
type Tensor struct {
	values [Size * Size]float32
}

// At returns the value at column x, row y.
func (t Tensor) At(x, y int) float32 {
	return t.values[y*Size+x]
}

// Values returns a copy of the grid as a flat slice.
func (t Tensor) Values() []float32 {
	out := make([]float32, len(t.values))
	copy(out, t.values[:])
	return out
}

// Foreground counts the stroke pixels.
func (t Tensor) Foreground() int {
	n := 0
	for _, v := range t.values {
		if v != 0 {
			n++
		}
	}
	return n
}

// Image renders the tensor as an opaque grayscale image with strokes in white.
func (t Tensor) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, Size, Size))
	for i, v := range t.values {
		img.Pix[i] = uint8(v * 255)
	}
	return img
}
