package paxlock

import (
	"fmt"
	"sync"
	"time"

	tdigest "github.com/caio/go-tdigest"
)

// Stats summarizes a Proposer's history.
type Stats struct {
	Attempts int64 // Acquire calls
	Acquired int64 // Acquire calls that returned a token
	Released int64 // Release calls that reached quorum
	NoQuorum int64 // Acquire or Release calls that failed with ErrNoQuorum

	// quantiles of successful Acquire latency.
	Q50  time.Duration
	Q99  time.Duration
	Q999 time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats{Attempts:%v, Acquired:%v, Released:%v, NoQuorum:%v, q50:%v, q99:%v, q999:%v}", s.Attempts, s.Acquired, s.Released, s.NoQuorum, s.Q50, s.Q99, s.Q999)
}

// latency keeps a t-digest of acquire times.
// The digest is not goroutine safe, hence mut.
type latency struct {
	mut sync.Mutex
	td  *tdigest.TDigest
	st  Stats
}

func newLatency() *latency {
	// compress of 100 still gives 1000x compression,
	// about 8KB for 1e6 samples; good accuracy at tails
	td, err := tdigest.New(tdigest.Compression(100))
	panicOn(err)
	return &latency{td: td}
}

func (s *latency) attempt() {
	s.mut.Lock()
	s.st.Attempts++
	s.mut.Unlock()
}

func (s *latency) acquired(elap time.Duration) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.st.Acquired++
	err := s.td.Add(float64(elap)) // nanoseconds
	panicOn(err)
}

func (s *latency) released() {
	s.mut.Lock()
	s.st.Released++
	s.mut.Unlock()
}

func (s *latency) noQuorum() {
	s.mut.Lock()
	s.st.NoQuorum++
	s.mut.Unlock()
}

func (s *latency) snapshot() (r Stats) {
	s.mut.Lock()
	defer s.mut.Unlock()
	r = s.st
	if r.Acquired > 0 {
		r.Q50 = time.Duration(s.td.Quantile(0.50))
		r.Q99 = time.Duration(s.td.Quantile(0.99))
		r.Q999 = time.Duration(s.td.Quantile(0.999))
	}
	return
}
