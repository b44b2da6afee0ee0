package state_test

import (
	"sync"
	"testing"

	"github.com/Brownie44l1/digit-api/internal/state"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHolder(t *testing.T) {
	Convey("Given an empty holder", t, func() {
		var h state.Holder[int]

		Convey("Then Get should report no value", func() {
			v, ok := h.Get()
			So(ok, ShouldBeFalse)
			So(v, ShouldEqual, 0)
		})

		Convey("When a value is set", func() {
			h.Set(7)

			Convey("Then Get should return it", func() {
				v, ok := h.Get()
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 7)
			})

			Convey("And when it is cleared", func() {
				prev, had := h.Clear()

				Convey("Then the previous value is returned and the holder is empty", func() {
					So(had, ShouldBeTrue)
					So(prev, ShouldEqual, 7)
					_, ok := h.Get()
					So(ok, ShouldBeFalse)
				})
			})
		})
	})

	Convey("Given a holder built with an initial value", t, func() {
		h := state.NewHolder("ready")
		v, ok := h.Get()
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "ready")
	})

	Convey("Given concurrent writers and readers", t, func() {
		h := state.NewHolder(0)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func(n int) {
				defer wg.Done()
				h.Set(n)
			}(i)
			go func() {
				defer wg.Done()
				_, _ = h.Get()
			}()
		}
		wg.Wait()

		_, ok := h.Get()
		So(ok, ShouldBeTrue)
	})
}
