package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given an initialized global logger", t, func() {
		So(Init(), ShouldBeNil)
		defer func() { So(Sync(), ShouldBeNil) }()

		Convey("Then Get and Named should return usable loggers", func() {
			So(Get(), ShouldNotBeNil)
			named := Named("test")
			So(named, ShouldNotBeNil)
			named.Info(context.Background(), "test message", String("k", "v"))
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		So(SetLevelString("info"), ShouldBeNil)
		var buf bytes.Buffer
		l := New(&buf).Named("pipeline")
		ctx := context.Background()

		Convey("When logging an error with fields", func() {
			l.Error(ctx, "classifier failed", Error(errors.New("boom")), Int("label", 3))

			Convey("Then the record should carry message, fields, component and source", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "classifier failed")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "label=3")
				So(out, ShouldContainSubstring, "component=pipeline")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When logging below the configured level", func() {
			l.Debug(ctx, "hidden")

			Convey("Then nothing should be written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		defer func() { _ = SetLevelString("info") }()

		So(SetLevelString("debug"), ShouldBeNil)
		So(SetLevelString(" WARNING "), ShouldBeNil)
		So(SetLevelString("error"), ShouldBeNil)
		So(SetLevelString(""), ShouldBeNil)

		err := SetLevelString("verbose")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "unknown log level")
	})
}
