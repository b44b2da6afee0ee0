package preprocess

import "errors"

// Sentinel errors for canvas preprocessing. ErrEmptyCanvas and
// ErrNoVisibleContent are user guidance, not internal failures.
var (
	ErrEmptyCanvas      = errors.New("empty canvas")
	ErrNoVisibleContent = errors.New("no visible content after resize")
	ErrInvalidImage     = errors.New("invalid image")
)
