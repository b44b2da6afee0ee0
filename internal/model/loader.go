// Package model hosts the digit classifier: an in-process ONNX session or a
// remote serving endpoint, loaded once in the background.
package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/Brownie44l1/digit-api/internal/state"
)

// LoadFunc opens a classifier.
type LoadFunc func(ctx context.Context) (Classifier, error)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger.
func WithLoaderLogger(l logger.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithLoaderMetrics sets the metrics manager.
func WithLoaderMetrics(m *metrics.Manager) LoaderOption {
	return func(ld *Loader) {
		if m != nil {
			ld.metrics = m
		}
	}
}

// WithRetry makes the loader retry a failed load up to attempts times in
// total, waiting interval between attempts.
func WithRetry(attempts int, interval time.Duration) LoaderOption {
	return func(ld *Loader) {
		if attempts > 0 {
			ld.attempts = attempts
		}
		if interval > 0 {
			ld.interval = interval
		}
	}
}

// Loader owns the classifier handle. Predictions issued before the load
// completes fail fast with ErrModelNotReady instead of blocking.
type Loader struct {
	load     LoadFunc
	log      logger.Logger
	metrics  *metrics.Manager
	attempts int
	interval time.Duration

	handle  state.Holder[Classifier]
	loadErr state.Holder[error]

	once sync.Once
	done chan struct{}
}

// NewLoader returns a Loader that has not started loading yet.
func NewLoader(load LoadFunc, opts ...LoaderOption) *Loader {
	l := &Loader{
		load:     load,
		log:      logger.Nop(),
		metrics:  metrics.Global(),
		attempts: 1,
		interval: time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start loads the classifier in a background goroutine. Only the first call
// has an effect.
func (l *Loader) Start(ctx context.Context) {
	l.once.Do(func() {
		l.metrics.SetModelReady(false)
		go l.run(ctx)
	})
}

func (l *Loader) run(ctx context.Context) {
	defer close(l.done)

	for attempt := 1; attempt <= l.attempts; attempt++ {
		start := time.Now()
		c, err := l.load(ctx)
		ms := float64(time.Since(start).Microseconds()) / 1000
		l.metrics.RecordModelLoad(ms, err != nil)

		if err == nil {
			l.handle.Set(c)
			l.loadErr.Clear()
			l.metrics.SetModelReady(true)
			l.log.Info(ctx, "model loaded", logger.Int("attempt", attempt), logger.Float64("duration_ms", ms))
			return
		}

		l.loadErr.Set(err)
		l.log.Error(ctx, "model load failed",
			logger.Error(err),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", l.attempts),
			logger.Bool("retrying", attempt < l.attempts))

		if attempt == l.attempts {
			return
		}
		select {
		case <-ctx.Done():
			l.loadErr.Set(ctx.Err())
			return
		case <-time.After(l.interval):
		}
	}
}

// Wait blocks until loading has finished (successfully or not) or ctx ends,
// and returns the load error if any.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether a classifier is available.
func (l *Loader) Ready() bool {
	_, ok := l.handle.Get()
	return ok
}

// Err returns the most recent load error.
func (l *Loader) Err() error {
	err, _ := l.loadErr.Get()
	return err
}

// Predict delegates to the loaded classifier.
func (l *Loader) Predict(ctx context.Context, t preprocess.Tensor) ([]float64, error) {
	c, ok := l.handle.Get()
	if !ok {
		if err := l.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelNotReady, err)
		}
		return nil, ErrModelNotReady
	}
	return c.Predict(ctx, t)
}

type closer interface {
	Close() error
}

// Close releases the classifier if it holds resources.
func (l *Loader) Close() error {
	c, ok := l.handle.Clear()
	l.metrics.SetModelReady(false)
	if !ok {
		return nil
	}
	if cl, ok := c.(closer); ok {
		return cl.Close()
	}
	return nil
}
