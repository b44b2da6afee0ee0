package pipeline

import (
	"errors"

	"github.com/Brownie44l1/digit-api/internal/inference"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
)

// ErrClassifierFailure wraps any error surfaced by a loaded classifier.
var ErrClassifierFailure = errors.New("classifier failure")

// Kind is the stable, user-facing category of a pipeline error.
type Kind string

const (
	KindEmptyCanvas       Kind = "empty_canvas"
	KindNoVisibleContent  Kind = "no_visible_content"
	KindModelNotReady     Kind = "model_not_ready"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidScores     Kind = "invalid_scores"
	KindClassifierFailure Kind = "classifier_failure"
)

// outcomeSuccess labels successful predictions in metrics.
const outcomeSuccess = "success"

var userMessages = map[Kind]string{
	KindEmptyCanvas:       "Please draw a digit first.",
	KindNoVisibleContent:  "Nothing is visible after resizing. Use darker or thicker strokes.",
	KindModelNotReady:     "The model is still loading. Please try again in a moment.",
	KindInvalidInput:      "The drawing could not be read. Please try again.",
	KindInvalidScores:     "Prediction failed. Please try again.",
	KindClassifierFailure: "Prediction failed. Please try again.",
}

// Classify maps err to its Kind. Unknown errors are classifier failures.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, preprocess.ErrEmptyCanvas):
		return KindEmptyCanvas
	case errors.Is(err, preprocess.ErrNoVisibleContent):
		return KindNoVisibleContent
	case errors.Is(err, model.ErrModelNotReady):
		return KindModelNotReady
	case errors.Is(err, preprocess.ErrInvalidImage), errors.Is(err, inference.ErrInvalidTemperature):
		return KindInvalidInput
	case errors.Is(err, inference.ErrInvalidScoreVector):
		return KindInvalidScores
	default:
		return KindClassifierFailure
	}
}

// UserMessage returns the text shown to the user for k. It never includes
// classifier internals.
func UserMessage(k Kind) string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[KindClassifierFailure]
}
