package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManager(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithPrometheusRegistry(registry),
			WithNamespace("test"),
			WithSubsystem("digits"),
			WithHistogramBuckets([]float64{1, 10, 100}),
		)

		Convey("When recording prediction outcomes", func() {
			m.RecordPrediction("success")
			m.RecordPrediction("success")
			m.RecordPrediction("empty_canvas")
			m.RecordLabel(3, 99.5)

			Convey("Then the counters should reflect them", func() {
				So(testutil.ToFloat64(m.predictions.WithLabelValues("success")), ShouldEqual, 2.0)
				So(testutil.ToFloat64(m.predictions.WithLabelValues("empty_canvas")), ShouldEqual, 1.0)
				So(testutil.ToFloat64(m.labels.WithLabelValues("3")), ShouldEqual, 1.0)
			})
		})

		Convey("When the model lifecycle changes", func() {
			m.SetModelReady(true)
			So(testutil.ToFloat64(m.modelReady), ShouldEqual, 1.0)

			m.SetModelReady(false)
			So(testutil.ToFloat64(m.modelReady), ShouldEqual, 0.0)

			m.RecordModelLoad(12.5, true)
			So(testutil.ToFloat64(m.modelLoadDuration), ShouldEqual, 12.5)
			So(testutil.ToFloat64(m.modelLoadFailures), ShouldEqual, 1.0)
		})

		Convey("When recording HTTP traffic and stage latency", func() {
			m.RecordHTTPRequest("predict", "POST", 200)
			m.RecordHTTPRequestDuration("predict", "POST", 200, 3)
			m.RecordStageLatency(StageNormalize, 0.4)

			Convey("Then the collectors should be gathered under the configured names", func() {
				So(testutil.ToFloat64(m.httpRequests.WithLabelValues("predict", "POST", "200")), ShouldEqual, 1.0)

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_digits_http_request_duration_milliseconds"], ShouldBeTrue)
				So(names["test_digits_stage_duration_milliseconds"], ShouldBeTrue)
			})
		})
	})

	Convey("Given the global manager", t, func() {
		So(Global(), ShouldNotBeNil)
		So(GetRegistry(), ShouldNotBeNil)
		So(func() { Global().RecordPrediction("success") }, ShouldNotPanic)
	})
}
