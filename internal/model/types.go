package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Brownie44l1/digit-api/internal/inference"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
)

// Classifier scores a normalized drawing. The returned slice holds one score
// per digit and may be raw logits.
type Classifier interface {
	Predict(ctx context.Context, t preprocess.Tensor) ([]float64, error)
}

// Metadata describes the exported model's tensors.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

// DefaultMetadata matches a Keras MNIST model exported to ONNX with
// channels-last input.
func DefaultMetadata() Metadata {
	return Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, preprocess.Size, preprocess.Size, 1},
		OutputShape: []int64{1, inference.NumClasses},
		ImageSize:   preprocess.Size,
	}
}

// LoadMetadata reads a metadata JSON file over the defaults. An empty path
// returns the defaults.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Validate checks that the model consumes one 28×28 single-channel image and
// emits ten scores.
func (m Metadata) Validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("%w: tensor names must not be empty", ErrBadMetadata)
	}
	if m.ImageSize != preprocess.Size {
		return fmt.Errorf("%w: image size %d, want %d", ErrBadMetadata, m.ImageSize, preprocess.Size)
	}
	if n := elements(m.InputShape); n != preprocess.Size*preprocess.Size {
		return fmt.Errorf("%w: input shape %v holds %d values, want %d", ErrBadMetadata, m.InputShape, n, preprocess.Size*preprocess.Size)
	}
	if n := elements(m.OutputShape); n != inference.NumClasses {
		return fmt.Errorf("%w: output shape %v holds %d values, want %d", ErrBadMetadata, m.OutputShape, n, inference.NumClasses)
	}
	return nil
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
