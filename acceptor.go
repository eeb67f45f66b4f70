package paxlock

import (
	"context"
	"fmt"
	"sync"
)

// AcceptorClient is what a Proposer fans out to.
// *Acceptor implements it in-process; *RemoteAcceptor
// implements it over a Client connection. An error
// return means "no reply", and is simply not counted
// toward quorum.
type AcceptorClient interface {
	Name() string
	Prepare(ctx context.Context, req *PrepareReq) (*PrepareReply, error)
	Accept(ctx context.Context, req *AcceptReq) (*AcceptReply, error)
}

// PrepareReq is phase 1a.
type PrepareReq struct {
	ID ProposalID `json:"id"`
}

// PrepareReply is phase 1b. The acceptor's whole
// tuple is returned whether or not it promised: the
// proposer reads Token and AcceptedID/Value from
// promises, and PromisedID from refusals to learn
// which round it has to beat.
type PrepareReply struct {
	From          string       `json:"from"`
	Promised      bool         `json:"promised"`
	PromisedID    ProposalID   `json:"promised_id"`
	AcceptedID    ProposalID   `json:"accepted_id"`
	AcceptedValue string       `json:"accepted_value"`
	Token         FencingToken `json:"token"`
}

// AcceptReq is phase 2a. Value is the client identity
// taking the lock, or "" to release it.
type AcceptReq struct {
	ID    ProposalID   `json:"id"`
	Value string       `json:"value"`
	Token FencingToken `json:"token"`
}

// AcceptReply is phase 2b.
type AcceptReply struct {
	From       string     `json:"from"`
	Accepted   bool       `json:"accepted"`
	PromisedID ProposalID `json:"promised_id"`
}

// AcceptorState is the one slot an Acceptor holds.
// Invariants: Promised never decreases;
// AcceptedID <= Promised; LastToken changes only
// when an Accept is admitted.
type AcceptorState struct {
	Promised      ProposalID   `json:"promised"`
	AcceptedID    ProposalID   `json:"accepted_id"`
	AcceptedValue string       `json:"accepted_value"`
	LastToken     FencingToken `json:"last_token"`
}

func (s AcceptorState) String() string {
	return fmt.Sprintf("AcceptorState{Promised:%v, AcceptedID:%v, AcceptedValue:'%v', LastToken:%v}", s.Promised, s.AcceptedID, s.AcceptedValue, uint64(s.LastToken))
}

// Acceptor answers Prepare and Accept for the
// single lock slot. State lives only in memory and
// starts from zero on every restart.
type Acceptor struct {
	name string

	// mut makes each request's read-then-write atomic
	// over all four fields of st.
	mut sync.Mutex
	st  AcceptorState
}

// NewAcceptor makes an Acceptor with empty state.
func NewAcceptor(name string) *Acceptor {
	return &Acceptor{name: name}
}

func (a *Acceptor) Name() string {
	return a.name
}

// State returns a copy of the current slot.
func (a *Acceptor) State() AcceptorState {
	a.mut.Lock()
	defer a.mut.Unlock()
	return a.st
}

// Prepare promises req.ID if it is larger than
// anything promised so far. A smaller or equal id
// gets Promised:false and changes nothing.
// ctx is unused locally; it is there for AcceptorClient.
func (a *Acceptor) Prepare(ctx context.Context, req *PrepareReq) (*PrepareReply, error) {
	a.mut.Lock()
	defer a.mut.Unlock()

	promised := false
	if req.ID.GT(a.st.Promised) {
		a.st.Promised = req.ID
		promised = true
	}
	pp("%v Prepare(%v) -> promised=%v; st=%v", a.name, req.ID, promised, a.st)

	return &PrepareReply{
		From:          a.name,
		Promised:      promised,
		PromisedID:    a.st.Promised,
		AcceptedID:    a.st.AcceptedID,
		AcceptedValue: a.st.AcceptedValue,
		Token:         a.st.LastToken,
	}, nil
}

// Accept takes req unless a larger id has been
// promised. Using >= rather than > admits the
// proposer whose Prepare set Promised, and makes a
// re-delivered Accept a no-op that still answers true.
func (a *Acceptor) Accept(ctx context.Context, req *AcceptReq) (*AcceptReply, error) {
	a.mut.Lock()
	defer a.mut.Unlock()

	accepted := false
	if req.ID.GTE(a.st.Promised) {
		a.st.Promised = req.ID
		a.st.AcceptedID = req.ID
		a.st.AcceptedValue = req.Value
		a.st.LastToken = req.Token
		accepted = true
	}
	pp("%v Accept(%v, '%v', %v) -> accepted=%v", a.name, req.ID, req.Value, uint64(req.Token), accepted)

	return &AcceptReply{
		From:       a.name,
		Accepted:   accepted,
		PromisedID: a.st.Promised,
	}, nil
}
