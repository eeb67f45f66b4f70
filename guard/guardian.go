// Package guard protects a shared resource with
// fencing tokens. A Guardian remembers the highest
// token it has accepted and refuses any write tagged
// with a token that is not strictly greater. A client
// that lost the lock while paused (GC, swap, network)
// therefore cannot clobber the work of the client that
// acquired it after.
package guard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glycerine/paxlock"
	"github.com/glycerine/paxlock/hash"
	rb "github.com/glycerine/rbtree"
)

// DefaultHistory is how many accepted writes
// History remembers.
const DefaultHistory = 64

// Record is the guarded resource: the last accepted
// payload and the token it was written under.
type Record struct {
	Data      []byte               `json:"data"`
	LastToken paxlock.FencingToken `json:"last_token"`
}

func (r Record) String() string {
	return fmt.Sprintf("Record{LastToken:%v, len %v Data}", uint64(r.LastToken), len(r.Data))
}

// Entry describes one accepted write.
type Entry struct {
	Token paxlock.FencingToken `json:"token"`
	At    time.Time            `json:"at"`
	Len   int                  `json:"len"`
	Sum   string               `json:"sum"` // hash.Blake3OfBytesString of the payload
}

// Guardian guards one Record.
type Guardian struct {
	mut sync.Mutex
	rec Record

	// accepted writes, ordered by token; at most maxHist.
	hist    *rb.Tree
	maxHist int

	// nil unless made by Open.
	snap *snapshotter
}

func newHistTree() *rb.Tree {
	return rb.NewTree(func(a, b rb.Item) int {
		return a.(*Entry).Token.Compare(b.(*Entry).Token)
	})
}

// New returns an in-memory Guardian that has accepted
// nothing, so any token from 1 up is accepted first.
func New() *Guardian {
	return &Guardian{
		hist:    newHistTree(),
		maxHist: DefaultHistory,
	}
}

// Write stores payload iff token is strictly greater
// than every token accepted before. Otherwise it
// returns an error wrapping paxlock.ErrStaleToken and
// nothing changes. A file backed Guardian persists the
// write before making it visible.
func (g *Guardian) Write(payload []byte, token paxlock.FencingToken) error {
	g.mut.Lock()
	defer g.mut.Unlock()

	if token <= g.rec.LastToken {
		pp("guardian rejects token %v; last accepted %v", uint64(token), uint64(g.rec.LastToken))
		return fmt.Errorf("%w: token %v is not above the last accepted token %v",
			paxlock.ErrStaleToken, uint64(token), uint64(g.rec.LastToken))
	}

	next := Record{
		Data:      append([]byte(nil), payload...),
		LastToken: token,
	}
	e := &Entry{
		Token: token,
		At:    time.Now().UTC(),
		Len:   len(payload),
		Sum:   hash.Blake3OfBytesString(payload),
	}

	if g.snap != nil {
		st := &snapState{
			Record:  next,
			History: append(g.historyLocked(), *e),
		}
		if len(st.History) > g.maxHist {
			st.History = st.History[len(st.History)-g.maxHist:]
		}
		if err := g.snap.save(st); err != nil {
			return fmt.Errorf("guardian could not persist write under token %v: %w", uint64(token), err)
		}
	}

	g.rec = next
	g.addHistory(e)
	return nil
}

// Read returns a copy of the current Record.
func (g *Guardian) Read() Record {
	g.mut.Lock()
	defer g.mut.Unlock()
	return Record{
		Data:      append([]byte(nil), g.rec.Data...),
		LastToken: g.rec.LastToken,
	}
}

// LastToken is the highest token accepted so far; 0 if none.
func (g *Guardian) LastToken() paxlock.FencingToken {
	g.mut.Lock()
	defer g.mut.Unlock()
	return g.rec.LastToken
}

// History returns the most recent accepted writes,
// oldest (smallest token) first.
func (g *Guardian) History() []Entry {
	g.mut.Lock()
	defer g.mut.Unlock()
	return g.historyLocked()
}

func (g *Guardian) historyLocked() (r []Entry) {
	for it := g.hist.Min(); !it.Limit(); it = it.Next() {
		r = append(r, *(it.Item().(*Entry)))
	}
	return
}

func (g *Guardian) addHistory(e *Entry) {
	g.hist.Insert(e)
	for g.hist.Len() > g.maxHist {
		g.hist.DeleteWithIterator(g.hist.Min())
	}
}

// Close releases the snapshot compressor, if any.
// The Guardian must not be used afterwards.
func (g *Guardian) Close() error {
	g.mut.Lock()
	defer g.mut.Unlock()
	if g.snap != nil {
		g.snap.close()
		g.snap = nil
	}
	return nil
}

func isStale(err error) bool {
	return errors.Is(err, paxlock.ErrStaleToken)
}
