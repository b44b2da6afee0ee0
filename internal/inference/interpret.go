// Package inference turns a classifier's raw score vector into a digit label,
// a confidence percentage and a per-class breakdown.
//
// Scores are always treated as logits and passed through softmax, even when
// the classifier already emits probabilities. A classifier that returns
// calibrated probabilities will therefore see its confidences flattened.
package inference

import (
	"fmt"
	"math"
	"sort"
)

const (
	// NumClasses is the number of digit labels.
	NumClasses = 10
	// DefaultTemperature leaves scores unscaled.
	DefaultTemperature = 1.0

	// percentDecimals is the precision of every reported percentage.
	// Rounding is half away from zero.
	percentDecimals = 2
)

// Prediction is an immutable interpretation of one score vector.
type Prediction struct {
	Label      int                 `json:"label"`
	Confidence float64             `json:"confidence"`
	PerClass   [NumClasses]float64 `json:"per_class"`
}

// Class pairs a digit with its percentage.
type Class struct {
	Label   int     `json:"label"`
	Percent float64 `json:"percent"`
}

// Interpret derives a Prediction from scores. A temperature below 1 sharpens
// the distribution and above 1 flattens it. The label is the first index
// holding the maximum scaled score.
func Interpret(scores []float64, temperature float64) (Prediction, error) {
	if len(scores) != NumClasses {
		return Prediction{}, fmt.Errorf("%w: expected %d scores, got %d", ErrInvalidScoreVector, NumClasses, len(scores))
	}
	if temperature <= 0 || math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidTemperature, temperature)
	}

	var scaled [NumClasses]float64
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return Prediction{}, fmt.Errorf("%w: score %d is %v", ErrInvalidScoreVector, i, s)
		}
		if temperature != DefaultTemperature {
			s /= temperature
			if math.IsInf(s, 0) {
				return Prediction{}, fmt.Errorf("%w: score %d overflows at temperature %v", ErrInvalidScoreVector, i, temperature)
			}
		}
		scaled[i] = s
	}

	label := argmax(scaled)
	probs := softmax(scaled, scaled[label])

	p := Prediction{Label: label}
	for i, v := range probs {
		p.PerClass[i] = roundPercent(v * 100)
	}
	p.Confidence = p.PerClass[label]
	return p, nil
}

// Ranked returns every class ordered by descending percentage; ties keep the
// lower digit first.
func (p Prediction) Ranked() []Class {
	out := make([]Class, NumClasses)
	for i, v := range p.PerClass {
		out[i] = Class{Label: i, Percent: v}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percent > out[j].Percent })
	return out
}

func argmax(v [NumClasses]float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// softmax subtracts max before exponentiating so no term overflows.
func softmax(v [NumClasses]float64, max float64) [NumClasses]float64 {
	var out [NumClasses]float64
	var sum float64
	for i, s := range v {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func roundPercent(v float64) float64 {
	scale := math.Pow10(percentDecimals)
	return math.Round(v*scale) / scale
}
