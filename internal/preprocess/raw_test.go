package preprocess_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/Brownie44l1/digit-api/internal/preprocess"
	. "github.com/smartystreets/goconvey/convey"
)

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// hugeHeaderPNG encodes a 1x1 PNG and rewrites its IHDR to claim width x height.
func hugeHeaderPNG(width, height uint32) []byte {
	data := encodePNG(image.NewGray(image.Rect(0, 0, 1, 1)))
	// 8-byte signature, 4-byte length, then "IHDR" at 12 and its data at 16.
	binary.BigEndian.PutUint32(data[16:], width)
	binary.BigEndian.PutUint32(data[20:], height)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestFromPixels(t *testing.T) {
	Convey("Given a raw canvas pixel buffer", t, func() {
		pix := make([]byte, 4*3*2)
		pix[0], pix[3] = 200, 255

		Convey("When the length matches the dimensions", func() {
			img, err := preprocess.FromPixels(3, 2, pix, 0)

			Convey("Then the image should hold a copy of the samples", func() {
				So(err, ShouldBeNil)
				So(img.Bounds().Dx(), ShouldEqual, 3)
				So(img.Bounds().Dy(), ShouldEqual, 2)
				So(img.NRGBAAt(0, 0).R, ShouldEqual, uint8(200))

				pix[0] = 1
				So(img.NRGBAAt(0, 0).R, ShouldEqual, uint8(200))
			})
		})

		Convey("When the length does not match", func() {
			_, err := preprocess.FromPixels(4, 2, pix, 0)

			Convey("Then it should be rejected as an invalid image", func() {
				So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "expected 32 bytes")
			})
		})

		Convey("When a dimension is not positive", func() {
			_, err := preprocess.FromPixels(0, 2, nil, 0)
			So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
		})

		Convey("When the dimensions are large enough to overflow the byte count", func() {
			var err error
			So(func() { _, err = preprocess.FromPixels(1<<31, 1<<31, nil, 0) }, ShouldNotPanic)

			Convey("Then they should be rejected before allocating", func() {
				So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "exceeds")
			})
		})

		Convey("When the area exceeds the configured limit", func() {
			_, err := preprocess.FromPixels(3, 2, pix, 5)
			So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
		})
	})
}

func TestDecodeDataURL(t *testing.T) {
	Convey("Given a canvas exported with toDataURL", t, func() {
		src := blankCanvas(280, 280)
		fill(src, image.Rect(60, 60, 220, 220), ink)
		url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(src))

		Convey("When decoding and normalizing it", func() {
			img, err := preprocess.DecodeDataURL(url, 0)
			So(err, ShouldBeNil)

			tensor, err := preprocess.NewNormalizer().Normalize(context.Background(), img)

			Convey("Then it should yield the same tensor as the raw pixels", func() {
				So(err, ShouldBeNil)
				So(tensor.Foreground(), ShouldEqual, 16*16)
			})
		})

		Convey("When the prefix is missing", func() {
			_, err := preprocess.DecodeDataURL(strings.TrimPrefix(url, "data:"), 0)
			So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
		})

		Convey("When the payload is not base64", func() {
			_, err := preprocess.DecodeDataURL("data:image/png,rawbytes", 0)
			So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
		})

		Convey("When the media type is not an image", func() {
			_, err := preprocess.DecodeDataURL("data:text/plain;base64,aGVsbG8=", 0)
			So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "text/plain")
		})

		Convey("When the payload is not an image", func() {
			_, err := preprocess.DecodeDataURL("data:image/png;base64,aGVsbG8=", 0)
			So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("Given an uploaded PNG", t, func() {
		img, err := preprocess.Decode(bytes.NewReader(encodePNG(paperCanvas(10, 10))), 0)
		So(err, ShouldBeNil)
		So(img.Bounds().Dx(), ShouldEqual, 10)

		_, err = preprocess.Decode(strings.NewReader("not an image"), 0)
		So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
	})

	Convey("Given a small PNG whose header declares a huge canvas", t, func() {
		data := hugeHeaderPNG(100000, 100000)

		_, err := preprocess.Decode(bytes.NewReader(data), 0)

		Convey("Then it should be rejected from the header alone", func() {
			So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "100000x100000 exceeds")
		})

		Convey("Then a data URL carrying it is rejected the same way", func() {
			url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
			_, err := preprocess.DecodeDataURL(url, 0)
			So(err.Error(), ShouldContainSubstring, "exceeds")
		})
	})

	Convey("Given a PNG larger than a configured limit", t, func() {
		_, err := preprocess.Decode(bytes.NewReader(encodePNG(paperCanvas(10, 10))), 99)
		So(errors.Is(err, preprocess.ErrInvalidImage), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "10x10 exceeds 99 pixels")
	})
}
