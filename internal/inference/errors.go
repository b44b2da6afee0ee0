package inference

import "errors"

// Sentinel errors for malformed interpreter input.
var (
	ErrInvalidScoreVector = errors.New("invalid score vector")
	ErrInvalidTemperature = errors.New("invalid temperature")
)
