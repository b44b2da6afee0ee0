// Package pipeline runs normalize, predict and interpret as one atomic call
// and translates every failure into a stable kind.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/Brownie44l1/digit-api/internal/inference"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/google/uuid"
)

const alternatives = 3

// Result is one immutable prediction handed to the presentation layer.
type Result struct {
	ID uuid.UUID `json:"id"`
	inference.Prediction
	Alternatives []inference.Class `json:"alternatives"`
	Temperature  float64           `json:"temperature"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithTemperature sets the default softmax temperature.
func WithTemperature(t float64) Option {
	return func(p *Predictor) { p.temperature = t }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Predictor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock overrides the time source for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) {
		if now != nil {
			p.now = now
		}
	}
}

// Predictor owns the preprocessing and interpretation steps around a
// classifier. It keeps no state between calls.
type Predictor struct {
	normalizer  *preprocess.Normalizer
	classifier  model.Classifier
	temperature float64
	log         logger.Logger
	metrics     *metrics.Manager
	now         func() time.Time
}

// New builds a Predictor.
func New(normalizer *preprocess.Normalizer, classifier model.Classifier, opts ...Option) *Predictor {
	p := &Predictor{
		normalizer:  normalizer,
		classifier:  classifier,
		temperature: inference.DefaultTemperature,
		log:         logger.Nop(),
		metrics:     metrics.Global(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Temperature reports the default temperature.
func (p *Predictor) Temperature() float64 { return p.temperature }

// RequestOption adjusts a single Predict call.
type RequestOption func(*request)

type request struct {
	temperature float64
}

// Temperature overrides the softmax temperature for one call.
func Temperature(t float64) RequestOption {
	return func(r *request) { r.temperature = t }
}

// Predict classifies img. Errors can be passed to Classify for a stable kind;
// classifier errors are logged in full here and wrapped in ErrClassifierFailure.
func (p *Predictor) Predict(ctx context.Context, img image.Image, opts ...RequestOption) (*Result, error) {
	req := request{temperature: p.temperature}
	for _, opt := range opts {
		opt(&req)
	}

	start := time.Now()
	res, err := p.predict(ctx, img, req)
	p.metrics.RecordStageLatency(metrics.StageTotal, sinceMs(start))

	if err != nil {
		kind := Classify(err)
		p.metrics.RecordPrediction(string(kind))
		p.log.Debug(ctx, "prediction rejected", logger.String("kind", string(kind)), logger.Error(err))
		return nil, err
	}

	p.metrics.RecordPrediction(outcomeSuccess)
	p.metrics.RecordLabel(res.Label, res.Confidence)
	p.log.Info(ctx, "prediction",
		logger.String("id", res.ID.String()),
		logger.Int("label", res.Label),
		logger.Float64("confidence", res.Confidence),
		logger.Float64("temperature", res.Temperature))
	return res, nil
}

func (p *Predictor) predict(ctx context.Context, img image.Image, req request) (*Result, error) {
	tensor, err := p.Preprocess(ctx, img)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	scores, err := p.classifier.Predict(ctx, tensor)
	p.metrics.RecordStageLatency(metrics.StageClassify, sinceMs(start))
	if err != nil {
		if Classify(err) == KindModelNotReady {
			return nil, err
		}
		p.log.Error(ctx, "classifier failed", logger.Error(err), logger.Int("foreground", tensor.Foreground()))
		return nil, fmt.Errorf("%w: %v", ErrClassifierFailure, err)
	}

	start = time.Now()
	prediction, err := inference.Interpret(scores, req.temperature)
	p.metrics.RecordStageLatency(metrics.StageInterpret, sinceMs(start))
	if err != nil {
		if Classify(err) == KindInvalidScores {
			p.log.Error(ctx, "classifier returned unusable scores", logger.Error(err), logger.Any("scores", scores))
		}
		return nil, err
	}

	runnersUp := make([]inference.Class, 0, alternatives)
	for _, c := range prediction.Ranked() {
		if c.Label != prediction.Label && len(runnersUp) < alternatives {
			runnersUp = append(runnersUp, c)
		}
	}

	return &Result{
		ID:           uuid.New(),
		Prediction:   prediction,
		Alternatives: runnersUp,
		Temperature:  req.temperature,
		CreatedAt:    p.now().UTC(),
	}, nil
}

// Preprocess runs only the normalizer, for previews.
func (p *Predictor) Preprocess(ctx context.Context, img image.Image) (preprocess.Tensor, error) {
	start := time.Now()
	tensor, err := p.normalizer.Normalize(ctx, img)
	p.metrics.RecordStageLatency(metrics.StageNormalize, sinceMs(start))
	return tensor, err
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
