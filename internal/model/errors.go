package model

import "errors"

// Sentinel errors for the classifier collaborator.
var (
	// ErrModelNotReady is returned by predictions issued before the
	// classifier finished loading, or after loading failed.
	ErrModelNotReady = errors.New("model not ready")
	ErrBadMetadata   = errors.New("bad model metadata")
	ErrRemote        = errors.New("remote inference failed")
)
