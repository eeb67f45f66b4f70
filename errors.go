package paxlock

import (
	"fmt"
)

// ErrNoQuorum means a Prepare or Accept round got
// fewer than Quorum() positive replies. Nothing is
// kept on the Proposer; retry with a fresh Acquire
// or Release, which allocates a new proposal id.
var ErrNoQuorum = fmt.Errorf("no quorum")

// ErrStaleToken is returned by a resource guardian
// when the write's token is not strictly greater than
// the last token it accepted. Retrying the same write
// cannot succeed; the caller must Acquire again.
var ErrStaleToken = fmt.Errorf("stale fencing token")

// ErrShutdown is returned by calls on a closed Client or Server.
var ErrShutdown = fmt.Errorf("shutting down")

// ErrDone is returned when the caller's context finished first.
var ErrDone = fmt.Errorf("done channel closed")

// ServerError represents an error that has been returned from
// the remote side of the connection.
type ServerError string

func (e ServerError) Error() string {
	return string(e)
}

// phase names used in ErrNoQuorum wrapping.
const (
	phasePrepare = "prepare"
	phaseAccept  = "accept"
)

func noQuorumErr(phase string, id ProposalID, got, need, asked int) error {
	return fmt.Errorf("%w: %v phase of %v got %v of %v needed (asked %v acceptors)",
		ErrNoQuorum, phase, id, got, need, asked)
}
