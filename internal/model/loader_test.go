package model_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

type stubClassifier struct {
	scores []float64
	err    error
	closed atomic.Bool
}

func (s *stubClassifier) Predict(ctx context.Context, t preprocess.Tensor) ([]float64, error) {
	return s.scores, s.err
}

func (s *stubClassifier) Close() error {
	s.closed.Store(true)
	return nil
}

func blobTensor() preprocess.Tensor {
	img := image.NewNRGBA(image.Rect(0, 0, 280, 280))
	draw.Draw(img, image.Rect(60, 60, 220, 220), image.NewUniform(color.Black), image.Point{}, draw.Src)
	t, err := preprocess.NewNormalizer().Normalize(context.Background(), img)
	if err != nil {
		panic(err)
	}
	return t
}

func testMetrics() *metrics.Manager {
	return metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
}

func TestLoader(t *testing.T) {
	Convey("Given a loader whose load blocks until released", t, func() {
		ctx := context.Background()
		release := make(chan struct{})
		stub := &stubClassifier{scores: []float64{0, 0, 0, 9, 0, 0, 0, 0, 0, 0}}
		loader := model.NewLoader(func(ctx context.Context) (model.Classifier, error) {
			<-release
			return stub, nil
		}, model.WithLoaderMetrics(testMetrics()))
		loader.Start(ctx)

		Convey("When predicting before the load completes", func() {
			_, err := loader.Predict(ctx, blobTensor())

			Convey("Then it should fail fast with ErrModelNotReady", func() {
				So(err, ShouldEqual, model.ErrModelNotReady)
				So(loader.Ready(), ShouldBeFalse)
			})
			close(release)
		})

		Convey("When the load completes", func() {
			close(release)
			So(loader.Wait(ctx), ShouldBeNil)

			Convey("Then predictions should reach the classifier", func() {
				So(loader.Ready(), ShouldBeTrue)
				scores, err := loader.Predict(ctx, blobTensor())
				So(err, ShouldBeNil)
				So(scores, ShouldResemble, stub.scores)
			})

			Convey("And Close should release the classifier", func() {
				So(loader.Close(), ShouldBeNil)
				So(stub.closed.Load(), ShouldBeTrue)
				So(loader.Ready(), ShouldBeFalse)
			})
		})
	})

	Convey("Given a loader whose load always fails", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		loadErr := errors.New("model file missing")
		var logs bytes.Buffer
		loader := model.NewLoader(func(ctx context.Context) (model.Classifier, error) {
			calls.Add(1)
			return nil, loadErr
		}, model.WithLoaderMetrics(testMetrics()), model.WithRetry(3, time.Millisecond),
			model.WithLoaderLogger(logger.New(&logs)))
		loader.Start(ctx)
		loader.Start(ctx)

		err := loader.Wait(ctx)

		Convey("Then it should retry, report the failure and keep refusing predictions", func() {
			So(err, ShouldEqual, loadErr)
			So(calls.Load(), ShouldEqual, int32(3))
			So(loader.Ready(), ShouldBeFalse)

			_, perr := loader.Predict(ctx, blobTensor())
			So(errors.Is(perr, model.ErrModelNotReady), ShouldBeTrue)
			So(perr.Error(), ShouldContainSubstring, "model file missing")
		})

		Convey("And each failed attempt should be logged with whether another follows", func() {
			So(strings.Count(logs.String(), "retrying=true"), ShouldEqual, 2)
			So(strings.Count(logs.String(), "retrying=false"), ShouldEqual, 1)
		})
	})

	Convey("Given a loader that fails once and then succeeds", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		stub := &stubClassifier{scores: make([]float64, 10)}
		loader := model.NewLoader(func(ctx context.Context) (model.Classifier, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("endpoint warming up")
			}
			return stub, nil
		}, model.WithLoaderMetrics(testMetrics()), model.WithRetry(2, time.Millisecond))
		loader.Start(ctx)

		Convey("Then the second attempt should make it ready with no error", func() {
			So(loader.Wait(ctx), ShouldBeNil)
			So(loader.Ready(), ShouldBeTrue)
			So(loader.Err(), ShouldBeNil)
		})
	})

	Convey("Given a loader cancelled while waiting to retry", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		loader := model.NewLoader(func(ctx context.Context) (model.Classifier, error) {
			cancel()
			return nil, errors.New("unavailable")
		}, model.WithLoaderMetrics(testMetrics()), model.WithRetry(5, time.Hour))
		loader.Start(ctx)

		Convey("Then Wait should return the cancellation", func() {
			err := loader.Wait(context.Background())
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}
