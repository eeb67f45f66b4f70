/*
Package paxlock provides a distributed lock whose every
successful acquisition returns a strictly increasing
fencing token.

Agreement on the lock holder is reached with the
single-slot (Synod) form of Paxos: a Proposer
runs Prepare and Accept rounds against a fixed set of
Acceptors and needs a majority, floor(N/2)+1, in both
phases. No clocks and no lease timers are involved.

The token handed back by Acquire is one more than the
highest token reported by any promising Acceptor. Because
any two majorities intersect, every later successful
Acquire sees at least one Acceptor holding the earlier
token, and so hands out a larger one.

Holding the lock means nothing to a storage system that
cannot talk to the lock service. So the client tags each
write with its token, and the storage side (see package
guard) refuses any token not strictly greater than the last
one it accepted. A client that paused, lost the lock, and
woke up again gets a stale-token rejection instead of
silently clobbering the new holder's data. See
https://martin.kleppmann.com/2016/02/08/how-to-do-distributed-locking.html

Acceptors can live in the same process as the Proposer
(*Acceptor satisfies AcceptorClient directly) or
behind a Server on another machine (see RegisterAcceptor
and NewRemoteAcceptor).

	acc := []AcceptorClient{NewAcceptor("a1"), NewAcceptor("a2"), NewAcceptor("a3")}
	p, err := NewProposer(NewConfig(), acc)
	if err != nil {
		return err
	}
	tok, err := p.Acquire(ctx, "client-A")
	if errors.Is(err, ErrNoQuorum) {
		// try again; a fresh attempt uses a new proposal id.
	}
	err = storage.Write(payload, tok) // storage is e.g. a *guard.Guardian
*/
package paxlock
