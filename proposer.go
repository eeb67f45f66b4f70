package paxlock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Proposer is the lock coordinator. It drives
// Prepare/Accept rounds against every acceptor and
// hands out fencing tokens.
//
// A Proposer owns its round counter; nothing is shared
// between Proposer instances. Token values come from
// what the acceptors report, never from a local counter.
type Proposer struct {
	cfg       Config
	acceptors []AcceptorClient
	quorum    int

	mut sync.Mutex

	// lastRound is the Round of the last ProposalID
	// we issued. Strictly increasing.
	lastRound uint64

	// highestSeen is the largest Round an acceptor
	// has told us it promised to somebody else.
	// The next id we issue goes above it.
	highestSeen uint64

	lat *latency
}

// NewProposer makes a Proposer over acceptors. The
// quorum is fixed here at floor(N/2)+1. cfg is copied.
func NewProposer(cfg *Config, acceptors []AcceptorClient) (*Proposer, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(acceptors) == 0 {
		return nil, fmt.Errorf("NewProposer: need at least one acceptor")
	}
	return &Proposer{
		cfg:       *cfg,
		acceptors: append([]AcceptorClient{}, acceptors...),
		quorum:    len(acceptors)/2 + 1,
		lat:       newLatency(),
	}, nil
}

// Quorum returns floor(N/2)+1.
func (p *Proposer) Quorum() int {
	return p.quorum
}

// ID returns the ProposerID used as our tiebreaker.
func (p *Proposer) ID() string {
	return p.cfg.ProposerID
}

// Stats returns counters and acquire latency quantiles.
func (p *Proposer) Stats() Stats {
	return p.lat.snapshot()
}

// nextProposalID never returns the same id twice,
// and always returns one larger than any acceptor
// has reported to us as promised.
func (p *Proposer) nextProposalID() ProposalID {
	p.mut.Lock()
	defer p.mut.Unlock()
	round := max(p.lastRound, p.highestSeen) + 1
	p.lastRound = round
	return ProposalID{Round: round, ProposerID: p.cfg.ProposerID}
}

func (p *Proposer) observe(promised ProposalID) {
	p.mut.Lock()
	if promised.Round > p.highestSeen {
		p.highestSeen = promised.Round
	}
	p.mut.Unlock()
}

// Acquire runs both phases for clientID. On success the
// caller holds the lock and must present the returned
// token on every write to a fenced resource. On
// ErrNoQuorum nothing needs undoing; call Acquire again.
// There is no automatic retry.
func (p *Proposer) Acquire(ctx context.Context, clientID string) (tok FencingToken, err error) {
	t0 := time.Now()
	p.lat.attempt()

	id := p.nextProposalID()
	promises, err := p.prepare(ctx, id)
	if err != nil {
		p.lat.noQuorum()
		return 0, err
	}

	// The new token must beat every token any
	// acceptor in our quorum ever recorded, including
	// ones from rounds we did not run.
	tok = maxToken(promises) + 1

	err = p.accept(ctx, id, clientID, tok)
	if err != nil {
		p.lat.noQuorum()
		return 0, err
	}
	p.lat.acquired(time.Since(t0))
	pp("proposer %v: '%v' acquired %v under %v", p.cfg.ProposerID, clientID, tok, id)
	return tok, nil
}

// Release runs the same two phases proposing the
// empty value. By default the Accept carries token 0,
// like the reference protocol; that overwrites the
// acceptors' high-water mark. With
// Config.ReleaseKeepsHighWater the highest token seen
// in the Prepare round is written back instead.
//
// clientID is only logged: any client may release.
func (p *Proposer) Release(ctx context.Context, clientID string) (released bool, err error) {
	id := p.nextProposalID()
	promises, err := p.prepare(ctx, id)
	if err != nil {
		p.lat.noQuorum()
		return false, err
	}
	var tok FencingToken
	if p.cfg.ReleaseKeepsHighWater {
		tok = maxToken(promises)
	}
	err = p.accept(ctx, id, "", tok)
	if err != nil {
		p.lat.noQuorum()
		return false, err
	}
	p.lat.released()
	pp("proposer %v: release by '%v' under %v (token %v)", p.cfg.ProposerID, clientID, id, uint64(tok))
	return true, nil
}

func maxToken(promises []*PrepareReply) (m FencingToken) {
	for _, r := range promises {
		if r.Token > m {
			m = r.Token
		}
	}
	return
}

// prepare returns the promising replies, or
// ErrNoQuorum if there are fewer than p.quorum.
func (p *Proposer) prepare(ctx context.Context, id ProposalID) (promises []*PrepareReply, err error) {
	req := &PrepareReq{ID: id}
	ctx, cancel := p.roundCtx(ctx)
	defer cancel()
	replies := fanout(ctx, p.acceptors,
		func(ctx context.Context, a AcceptorClient) (*PrepareReply, error) {
			return a.Prepare(ctx, req)
		})
	for _, r := range replies {
		if r.err != nil {
			pp("prepare %v: no reply from %v: %v", id, r.from, r.err)
			continue
		}
		if r.reply.Promised {
			promises = append(promises, r.reply)
		} else {
			p.observe(r.reply.PromisedID)
		}
	}
	if len(promises) < p.quorum {
		return nil, noQuorumErr(phasePrepare, id, len(promises), p.quorum, len(p.acceptors))
	}
	return promises, nil
}

func (p *Proposer) accept(ctx context.Context, id ProposalID, value string, tok FencingToken) error {
	req := &AcceptReq{ID: id, Value: value, Token: tok}
	ctx, cancel := p.roundCtx(ctx)
	defer cancel()
	replies := fanout(ctx, p.acceptors,
		func(ctx context.Context, a AcceptorClient) (*AcceptReply, error) {
			return a.Accept(ctx, req)
		})
	n := 0
	for _, r := range replies {
		if r.err != nil {
			pp("accept %v: no reply from %v: %v", id, r.from, r.err)
			continue
		}
		if r.reply.Accepted {
			n++
		} else {
			p.observe(r.reply.PromisedID)
		}
	}
	if n < p.quorum {
		return noQuorumErr(phaseAccept, id, n, p.quorum, len(p.acceptors))
	}
	return nil
}

// roundCtx applies RoundTimeout. Cancelling it at the
// end of a round also aborts calls still in flight.
func (p *Proposer) roundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.RoundTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.RoundTimeout)
}

type fanReply[T any] struct {
	from  string
	reply T
	err   error
}

// fanout calls fn on every acceptor at once and
// collects replies until all have answered or ctx is
// done. Late answers land in the buffered channel and
// are dropped. Which replies arrive first does not
// matter; only how many say yes.
func fanout[T any](ctx context.Context, acceptors []AcceptorClient, fn func(context.Context, AcceptorClient) (T, error)) (got []fanReply[T]) {
	ch := make(chan fanReply[T], len(acceptors))
	for _, a := range acceptors {
		go func(a AcceptorClient) {
			reply, err := fn(ctx, a)
			ch <- fanReply[T]{from: a.Name(), reply: reply, err: err}
		}(a)
	}
	for range acceptors {
		select {
		case r := <-ch:
			got = append(got, r)
		case <-ctx.Done():
			return
		}
	}
	return
}
