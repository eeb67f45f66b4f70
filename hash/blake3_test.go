package hash

import (
	"errors"
	"testing"

	cv "github.com/glycerine/goconvey/convey"
)

func Test001_blake3_sum_strings(t *testing.T) {

	cv.Convey("Blake3OfBytesString is stable, prefixed, and changes with the input", t, func() {
		a := Blake3OfBytesString([]byte("hello"))
		cv.So(a, cv.ShouldStartWith, SumPrefix)
		cv.So(a, cv.ShouldEqual, Blake3OfBytesString([]byte("hello")))
		cv.So(a, cv.ShouldNotEqual, Blake3OfBytesString([]byte("hellp")))
		cv.So(len(Blake3OfBytes(nil)), cv.ShouldEqual, 64)
	})

	cv.Convey("Verify accepts the right sum and flags anything else as ErrChecksum", t, func() {
		data := []byte("fenced payload")
		sum := Blake3OfBytesString(data)
		cv.So(Verify(data, sum), cv.ShouldBeNil)
		cv.So(errors.Is(Verify([]byte("tampered"), sum), ErrChecksum), cv.ShouldBeTrue)
		cv.So(errors.Is(Verify(data, "md5-abc"), ErrChecksum), cv.ShouldBeTrue)
	})
}
