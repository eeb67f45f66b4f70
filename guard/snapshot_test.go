package guard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	cv "github.com/glycerine/goconvey/convey"
	gjson "github.com/goccy/go-json"

	"github.com/glycerine/paxlock"
	"github.com/glycerine/paxlock/hash"
)

func Test500_snapshot_survives_restart(t *testing.T) {

	cv.Convey("a file backed Guardian reopens with its Record, LastToken and History", t, func() {
		path := filepath.Join(t.TempDir(), "sub", "guard.snap")

		g, err := Open(path)
		panicOn(err)
		cv.So(g.LastToken(), cv.ShouldEqual, paxlock.FencingToken(0))
		_, err = os.Stat(path)
		cv.So(os.IsNotExist(err), cv.ShouldBeTrue)

		panicOn(g.Write([]byte("one"), 1))
		panicOn(g.Write([]byte("seven"), 7))
		err = g.Write([]byte("stale"), 4)
		cv.So(errors.Is(err, paxlock.ErrStaleToken), cv.ShouldBeTrue)
		panicOn(g.Close())

		g2, err := Open(path)
		panicOn(err)
		defer g2.Close()
		rec := g2.Read()
		cv.So(string(rec.Data), cv.ShouldEqual, "seven")
		cv.So(rec.LastToken, cv.ShouldEqual, paxlock.FencingToken(7))

		hist := g2.History()
		cv.So(len(hist), cv.ShouldEqual, 2)
		cv.So(hist[0].Token, cv.ShouldEqual, paxlock.FencingToken(1))
		cv.So(hist[1].Token, cv.ShouldEqual, paxlock.FencingToken(7))
		cv.So(hist[1].Sum, cv.ShouldEqual, hash.Blake3OfBytesString([]byte("seven")))

		// the high-water mark survived: 7 is still stale.
		err = g2.Write([]byte("again"), 7)
		cv.So(errors.Is(err, paxlock.ErrStaleToken), cv.ShouldBeTrue)
		panicOn(g2.Write([]byte("eight"), 8))
	})

	cv.Convey("a snapshot whose body does not match its checksum is refused", t, func() {
		path := filepath.Join(t.TempDir(), "guard.snap")
		g, err := Open(path)
		panicOn(err)
		panicOn(g.Write([]byte("good"), 3))
		panicOn(g.Close())

		by, err := os.ReadFile(path)
		panicOn(err)
		var env snapFile
		panicOn(gjson.Unmarshal(by, &env))

		// swap in a different, well formed body under the old sum.
		raw, err := gjson.Marshal(&snapState{Record: Record{Data: []byte("evil"), LastToken: 1}})
		panicOn(err)
		z, err := newZstdCompressor()
		panicOn(err)
		env.Zstd = z.Compress(raw)
		z.Close()
		by, err = gjson.Marshal(&env)
		panicOn(err)
		panicOn(os.WriteFile(path, by, 0600))

		_, err = Open(path)
		cv.So(errors.Is(err, hash.ErrChecksum), cv.ShouldBeTrue)
	})

	cv.Convey("garbage and unknown versions are refused too", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "junk.snap")
		panicOn(os.WriteFile(path, []byte("not a snapshot"), 0600))
		_, err := Open(path)
		cv.So(err, cv.ShouldNotBeNil)

		path = filepath.Join(dir, "v9.snap")
		panicOn(os.WriteFile(path, []byte(`{"version":9}`), 0600))
		_, err = Open(path)
		cv.So(err, cv.ShouldNotBeNil)
	})
}
