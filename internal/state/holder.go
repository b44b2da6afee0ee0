// Package state holds small pieces of shared process state behind get/set
// semantics, independent of any UI reactivity model.
package state

import "sync"

// Holder stores a single value of type T. The zero value is ready to use and
// reports no value.
type Holder[T any] struct {
	mu    sync.RWMutex
	value T
	set   bool
}

// NewHolder returns a Holder already containing v.
func NewHolder[T any](v T) *Holder[T] {
	return &Holder[T]{value: v, set: true}
}

// Get returns the stored value and whether one is present.
func (h *Holder[T]) Get() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.value, h.set
}

// Set replaces the stored value.
func (h *Holder[T]) Set(v T) {
	h.mu.Lock()
	h.value = v
	h.set = true
	h.mu.Unlock()
}

// Clear discards the stored value and returns the previous one, if any.
func (h *Holder[T]) Clear() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev, had := h.value, h.set
	var zero T
	h.value = zero
	h.set = false
	return prev, had
}
