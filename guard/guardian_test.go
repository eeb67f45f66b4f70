package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	cv "github.com/glycerine/goconvey/convey"

	"github.com/glycerine/paxlock"
)

func Test400_guardian_rejects_stale_tokens(t *testing.T) {

	cv.Convey("after a write under token 5, tokens 5 and 3 are stale and 6 is accepted", t, func() {
		g := New()
		cv.So(g.LastToken(), cv.ShouldEqual, paxlock.FencingToken(0))

		panicOn(g.Write([]byte("five"), 5))
		cv.So(g.LastToken(), cv.ShouldEqual, paxlock.FencingToken(5))

		err := g.Write([]byte("again"), 5)
		cv.So(errors.Is(err, paxlock.ErrStaleToken), cv.ShouldBeTrue)
		err = g.Write([]byte("old"), 3)
		cv.So(errors.Is(err, paxlock.ErrStaleToken), cv.ShouldBeTrue)

		rec := g.Read()
		cv.So(string(rec.Data), cv.ShouldEqual, "five")
		cv.So(rec.LastToken, cv.ShouldEqual, paxlock.FencingToken(5))

		panicOn(g.Write([]byte("six"), 6))
		rec = g.Read()
		cv.So(string(rec.Data), cv.ShouldEqual, "six")
		cv.So(rec.LastToken, cv.ShouldEqual, paxlock.FencingToken(6))
	})

	cv.Convey("token 0 is never accepted, and Read hands out a copy", t, func() {
		g := New()
		err := g.Write([]byte("zero"), 0)
		cv.So(errors.Is(err, paxlock.ErrStaleToken), cv.ShouldBeTrue)

		payload := []byte("abc")
		panicOn(g.Write(payload, 1))
		payload[0] = 'X'
		rec := g.Read()
		cv.So(string(rec.Data), cv.ShouldEqual, "abc")
		rec.Data[0] = 'Y'
		cv.So(string(g.Read().Data), cv.ShouldEqual, "abc")
	})

	cv.Convey("concurrent writers: exactly one write per token wins and LastToken ends at the max", t, func() {
		g := New()
		var wg sync.WaitGroup
		var mut sync.Mutex
		wins := 0
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for tok := 1; tok <= 100; tok++ {
					err := g.Write([]byte(fmt.Sprintf("w%v", w)), paxlock.FencingToken(tok))
					if err == nil {
						mut.Lock()
						wins++
						mut.Unlock()
					}
				}
			}(w)
		}
		wg.Wait()
		cv.So(g.LastToken(), cv.ShouldEqual, paxlock.FencingToken(100))
		cv.So(wins, cv.ShouldBeLessThanOrEqualTo, 100)
		cv.So(wins, cv.ShouldBeGreaterThan, 0)

		hist := g.History()
		for i := 1; i < len(hist); i++ {
			cv.So(hist[i].Token, cv.ShouldBeGreaterThan, hist[i-1].Token)
		}
	})
}

func Test410_history_is_bounded_and_ordered(t *testing.T) {

	cv.Convey("History keeps the last DefaultHistory accepted writes in token order", t, func() {
		g := New()
		n := DefaultHistory + 10
		for i := 1; i <= n; i++ {
			panicOn(g.Write([]byte(fmt.Sprintf("v%v", i)), paxlock.FencingToken(i*2)))
		}
		hist := g.History()
		cv.So(len(hist), cv.ShouldEqual, DefaultHistory)
		cv.So(hist[0].Token, cv.ShouldEqual, paxlock.FencingToken(2*(n-DefaultHistory+1)))
		cv.So(hist[len(hist)-1].Token, cv.ShouldEqual, paxlock.FencingToken(2*n))
		last := hist[len(hist)-1]
		cv.So(last.Len, cv.ShouldEqual, len(fmt.Sprintf("v%v", n)))
		cv.So(last.Sum, cv.ShouldNotEqual, "")
	})
}

func Test420_lock_and_guardian_together(t *testing.T) {

	cv.Convey("5 acceptors: A gets token 1, B gets token 2 and writes; A wakes from its pause and its write under token 1 is rejected", t, func() {
		ctx := context.Background()

		var acc []paxlock.AcceptorClient
		for i := 0; i < 5; i++ {
			acc = append(acc, paxlock.NewAcceptor(fmt.Sprintf("acceptor-%v", i)))
		}
		cfgA := paxlock.NewConfig()
		cfgA.ProposerID = "proposer-A"
		propA, err := paxlock.NewProposer(cfgA, acc)
		panicOn(err)

		cfgB := paxlock.NewConfig()
		cfgB.ProposerID = "proposer-B"
		propB, err := paxlock.NewProposer(cfgB, acc)
		panicOn(err)

		g := New()

		tokA, err := propA.Acquire(ctx, "client-A")
		panicOn(err)
		cv.So(tokA, cv.ShouldEqual, paxlock.FencingToken(1))

		// client-A pauses before writing; the lock moves on.
		tokB, err := propB.Acquire(ctx, "client-B")
		panicOn(err)
		cv.So(tokB, cv.ShouldEqual, paxlock.FencingToken(2))

		panicOn(g.Write([]byte("from B"), tokB))

		err = g.Write([]byte("from A"), tokA)
		cv.So(errors.Is(err, paxlock.ErrStaleToken), cv.ShouldBeTrue)

		rec := g.Read()
		cv.So(string(rec.Data), cv.ShouldEqual, "from B")
		cv.So(rec.LastToken, cv.ShouldEqual, paxlock.FencingToken(2))
	})

	cv.Convey("after a default Release the acceptors restart at token 1, but the guardian still refuses it", t, func() {
		ctx := context.Background()
		var acc []paxlock.AcceptorClient
		for i := 0; i < 3; i++ {
			acc = append(acc, paxlock.NewAcceptor(fmt.Sprintf("acceptor-%v", i)))
		}
		cfg := paxlock.NewConfig()
		cfg.ProposerID = "p"
		p, err := paxlock.NewProposer(cfg, acc)
		panicOn(err)
		g := New()

		tok, err := p.Acquire(ctx, "c")
		panicOn(err)
		tok, err = p.Acquire(ctx, "c")
		panicOn(err)
		cv.So(tok, cv.ShouldEqual, paxlock.FencingToken(2))
		panicOn(g.Write([]byte("x"), tok))

		_, err = p.Release(ctx, "c")
		panicOn(err)

		tok, err = p.Acquire(ctx, "c")
		panicOn(err)
		cv.So(tok, cv.ShouldEqual, paxlock.FencingToken(1))
		err = g.Write([]byte("y"), tok)
		cv.So(errors.Is(err, paxlock.ErrStaleToken), cv.ShouldBeTrue)
	})
}
